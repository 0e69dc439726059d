package extractor

import (
	"bytes"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// textExtractor reads plain-text and source files, sanitizing invalid UTF-8
// so downstream FTS indexing and AI prompts never see garbage bytes.
type textExtractor struct {
	limit int
}

func (t *textExtractor) Extract(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	// Read a little past the limit so truncation can mark the cut.
	raw, err := io.ReadAll(io.LimitReader(f, int64(t.limit)*2))
	if err != nil {
		return nil, err
	}

	text := sanitizeUTF8(raw)
	lineCount := strings.Count(text, "\n") + 1

	return &Result{
		Text: truncate(text, t.limit),
		Metadata: map[string]any{
			"char_count": len(text),
			"line_count": lineCount,
		},
	}, nil
}

// sanitizeUTF8 drops invalid byte sequences and NULs.
func sanitizeUTF8(raw []byte) string {
	if utf8.Valid(raw) && !bytes.ContainsRune(raw, 0) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r != utf8.RuneError && r != 0 {
			b.WriteRune(r)
		}
		raw = raw[size:]
	}
	return b.String()
}
