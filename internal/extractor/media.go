package extractor

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rwcarlsen/goexif/exif"
)

// imageExtractor produces metadata-only entries for images: dimensions plus
// whatever EXIF offers. No OCR — the date and camera fields alone make
// queries like "vacation photos from 2023" answerable.
type imageExtractor struct{}

func (i *imageExtractor) Extract(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	meta := map[string]any{}

	if cfg, format, err := image.DecodeConfig(f); err == nil {
		meta["format"] = format
		meta["width"] = cfg.Width
		meta["height"] = cfg.Height
		meta["dimensions"] = fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)
	}

	if _, err := f.Seek(0, 0); err == nil {
		if x, err := exif.Decode(f); err == nil {
			if taken, err := x.DateTime(); err == nil {
				meta["taken_at"] = taken.Format("2006-01-02")
			}
			if t, err := x.Get(exif.Model); err == nil {
				if model, err := t.StringVal(); err == nil {
					meta["camera_model"] = strings.TrimSpace(model)
				}
			}
			if t, err := x.Get(exif.Make); err == nil {
				if maker, err := t.StringVal(); err == nil {
					meta["camera_make"] = strings.TrimSpace(maker)
				}
			}
		}
	}

	if info, err := f.Stat(); err == nil {
		meta["size_bytes"] = info.Size()
		if _, ok := meta["taken_at"]; !ok {
			meta["modified"] = info.ModTime().Format("2006-01-02")
		}
	}

	return &Result{Metadata: meta}, nil
}

// audioExtractor reads embedded tags (ID3, MP4, Vorbis comments).
type audioExtractor struct{}

func (a *audioExtractor) Extract(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	meta := map[string]any{}
	if info, err := f.Stat(); err == nil {
		meta["size_bytes"] = info.Size()
	}

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Untagged audio is still a valid metadata-only entry.
		return &Result{Metadata: meta}, nil
	}

	meta["tag_format"] = string(m.Format())
	if v := m.Title(); v != "" {
		meta["title"] = v
	}
	if v := m.Artist(); v != "" {
		meta["artist"] = v
	}
	if v := m.Album(); v != "" {
		meta["album"] = v
	}
	if v := m.Genre(); v != "" {
		meta["genre"] = v
	}
	if y := m.Year(); y != 0 {
		meta["year"] = y
	}

	return &Result{Metadata: meta}, nil
}

// videoExtractor records container-level facts only; frame inspection is
// not worth the cost for cataloging.
type videoExtractor struct{}

func (v *videoExtractor) Extract(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Result{
		Metadata: map[string]any{
			"container": strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
			"size_mb":   float64(info.Size()) / (1024 * 1024),
			"modified":  info.ModTime().Format("2006-01-02"),
		},
	}, nil
}
