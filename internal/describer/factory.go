package describer

import (
	"fmt"
	"time"

	"github.com/filedex/filedex/internal/config"
)

// New builds the describer selected by provider configuration.
func New(cfg config.ProviderConfig) (Describer, error) {
	cache := NewCache(0)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch cfg.Kind {
	case ProviderLocal:
		return NewLocalProvider(cfg.Endpoint, cfg.Model, cfg.EmbeddingModel,
			timeout, cfg.MaxRetries, cache), nil
	case ProviderCloud:
		return NewCloudProvider(cfg.Endpoint, cfg.APIKey, cfg.Model,
			cfg.EmbeddingModel, timeout, cfg.MaxRetries, cache)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
