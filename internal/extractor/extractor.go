// Package extractor converts heterogeneous files into normalized text plus
// structured metadata. Each file kind has its own extractor variant; parsing
// failures never escape the package boundary as panics, they come back as
// wrapped ErrExtraction values the build pipeline records per entry.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/filedex/filedex/pkg/types"
)

// Per-kind caps on extracted text. Content is head-biased: titles, filenames
// and early paragraphs carry most of the signal.
const (
	maxTextBytes  = 10000
	maxDocBytes   = 5000
	maxSheetBytes = 3000
)

var textExts = map[string]struct{}{
	".txt": {}, ".md": {}, ".rst": {}, ".log": {}, ".csv": {},
	".ini": {}, ".cfg": {}, ".conf": {}, ".yaml": {}, ".yml": {},
	".json": {}, ".xml": {}, ".toml": {},
}

var codeExts = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".ts": {}, ".rb": {}, ".rs": {},
	".c": {}, ".h": {}, ".cpp": {}, ".java": {}, ".kt": {}, ".swift": {},
	".sh": {}, ".bat": {}, ".sql": {}, ".html": {}, ".css": {}, ".php": {},
}

var imageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tiff": {}, ".webp": {},
}

var audioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".flac": {}, ".m4a": {}, ".ogg": {},
}

var videoExts = map[string]struct{}{
	".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".wmv": {}, ".webm": {},
}

var archiveExts = map[string]struct{}{
	".zip": {}, ".jar": {}, ".epub": {},
}

// Result is the outcome of extracting one file.
type Result struct {
	Text     string
	Metadata map[string]any
}

// Extractor maps a path to normalized text and metadata for one file kind.
type Extractor interface {
	Extract(path string) (*Result, error)
}

// Registry dispatches extraction by file kind, with an explicit fallback for
// unknown binaries.
type Registry struct {
	byKind   map[types.FileKind]Extractor
	fallback Extractor
}

// NewRegistry builds the default registry covering every FileKind.
func NewRegistry() *Registry {
	text := &textExtractor{limit: maxTextBytes}
	return &Registry{
		byKind: map[types.FileKind]Extractor{
			types.KindText:        text,
			types.KindCode:        text,
			types.KindDocument:    &documentExtractor{limit: maxDocBytes},
			types.KindSpreadsheet: &spreadsheetExtractor{limit: maxSheetBytes},
			types.KindImage:       &imageExtractor{},
			types.KindAudio:       &audioExtractor{},
			types.KindVideo:       &videoExtractor{},
			types.KindArchive:     &archiveExtractor{},
		},
		fallback: &unknownExtractor{},
	}
}

// Classify determines the file kind from the extension, falling back to
// content sniffing for extensionless or unrecognized files.
func Classify(path string) (types.FileKind, string) {
	ext := strings.ToLower(filepath.Ext(path))

	kind := kindForExt(ext)
	mime := ""
	if mt, err := mimetype.DetectFile(path); err == nil {
		mime = mt.String()
		if kind == types.KindOther {
			kind = kindForMime(mt)
		}
	}
	return kind, mime
}

func kindForExt(ext string) types.FileKind {
	switch {
	case ext == ".pdf" || ext == ".docx" || ext == ".doc":
		return types.KindDocument
	case ext == ".xlsx" || ext == ".xls":
		return types.KindSpreadsheet
	default:
	}
	if _, ok := textExts[ext]; ok {
		return types.KindText
	}
	if _, ok := codeExts[ext]; ok {
		return types.KindCode
	}
	if _, ok := imageExts[ext]; ok {
		return types.KindImage
	}
	if _, ok := audioExts[ext]; ok {
		return types.KindAudio
	}
	if _, ok := videoExts[ext]; ok {
		return types.KindVideo
	}
	if _, ok := archiveExts[ext]; ok {
		return types.KindArchive
	}
	return types.KindOther
}

func kindForMime(mt *mimetype.MIME) types.FileKind {
	s := mt.String()
	switch {
	case mt.Is("application/pdf"):
		return types.KindDocument
	case mt.Is("application/zip"):
		return types.KindArchive
	case strings.HasPrefix(s, "text/"):
		return types.KindText
	case strings.HasPrefix(s, "image/"):
		return types.KindImage
	case strings.HasPrefix(s, "audio/"):
		return types.KindAudio
	case strings.HasPrefix(s, "video/"):
		return types.KindVideo
	default:
		return types.KindOther
	}
}

// Extract runs the extractor for the given kind. Any internal failure,
// including a parser panic, is converted into a wrapped ErrExtraction.
func (r *Registry) Extract(path string, kind types.FileKind) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = fmt.Errorf("%w: %s: panic in %s extractor: %v", types.ErrExtraction, path, kind, p)
		}
	}()

	ex, ok := r.byKind[kind]
	if !ok {
		ex = r.fallback
	}

	res, err = ex.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrExtraction, path, err)
	}
	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["kind"] = string(kind)
	return res, nil
}

// unknownExtractor handles binaries no variant understands: metadata only,
// so the file still gets a description and stays findable by name.
type unknownExtractor struct{}

func (u *unknownExtractor) Extract(path string) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Result{
		Metadata: map[string]any{
			"size_bytes": info.Size(),
			"modified":   info.ModTime().Format("2006-01-02"),
			"extension":  strings.ToLower(filepath.Ext(path)),
		},
	}, nil
}

// truncate cuts s to at most limit bytes at a rune boundary, keeping the
// head of the content.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := s[:limit]
	for !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
