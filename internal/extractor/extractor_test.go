package extractor

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedex/filedex/pkg/types"
)

func TestClassify_ByExtension(t *testing.T) {
	tests := []struct {
		name string
		kind types.FileKind
	}{
		{"notes.txt", types.KindText},
		{"readme.MD", types.KindText},
		{"main.go", types.KindCode},
		{"report.pdf", types.KindDocument},
		{"letter.docx", types.KindDocument},
		{"budget.xlsx", types.KindSpreadsheet},
		{"beach.JPG", types.KindImage},
		{"song.mp3", types.KindAudio},
		{"clip.mp4", types.KindVideo},
		{"backup.zip", types.KindArchive},
		{"data.bin", types.KindOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, kindForExt(strings.ToLower(filepath.Ext(tt.name))), tt.name)
	}
}

func TestClassify_SniffsExtensionless(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NOTES")
	require.NoError(t, os.WriteFile(path, []byte("plain text, no extension"), 0o644))

	kind, mime := Classify(path)
	assert.Equal(t, types.KindText, kind)
	assert.Contains(t, mime, "text/plain")
}

func TestTextExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.txt")
	require.NoError(t, os.WriteFile(path, []byte("chocolate cake\n2 eggs\n1 cup flour\n"), 0o644))

	res, err := NewRegistry().Extract(path, types.KindText)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "chocolate cake")
	assert.Equal(t, "text", res.Metadata["kind"])
	assert.Equal(t, 4, res.Metadata["line_count"])
}

func TestTextExtractor_Truncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.log")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), maxTextBytes*3), 0o644))

	res, err := NewRegistry().Extract(path, types.KindText)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Text), maxTextBytes+len("..."))
	assert.True(t, strings.HasSuffix(res.Text, "..."))
}

func TestTruncate_RuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	out := truncate(s, 5)
	assert.True(t, strings.HasSuffix(out, "..."))
	assert.True(t, len(out) <= 5+3)
	for _, r := range out {
		assert.NotEqual(t, '�', r)
	}
}

func writeDocx(t *testing.T, path string, paragraphs []string) {
	t.Helper()
	var doc strings.Builder
	doc.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		doc.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(doc.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestDocumentExtractor_Docx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "letter.docx")
	writeDocx(t, path, []string{"Dear committee,", "I am writing about the budget."})

	res, err := NewRegistry().Extract(path, types.KindDocument)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "Dear committee,")
	assert.Contains(t, res.Text, "budget")
	assert.Equal(t, 2, res.Metadata["paragraph_count"])
}

func TestDocumentExtractor_CorruptDocx(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := NewRegistry().Extract(path, types.KindDocument)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExtraction)
}

func TestImageExtractor_NoExif(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixel.png")

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 3))))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res, err := NewRegistry().Extract(path, types.KindImage)
	require.NoError(t, err)
	assert.Empty(t, res.Text, "images are metadata-only entries")
	assert.Equal(t, "4x3", res.Metadata["dimensions"])
	assert.Equal(t, "png", res.Metadata["format"])
}

func TestArchiveExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.zip")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"photos/2023/beach.jpg", "taxes/return-2023.pdf"} {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte("data"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res, err := NewRegistry().Extract(path, types.KindArchive)
	require.NoError(t, err)
	assert.Contains(t, res.Text, "photos/2023/beach.jpg")
	assert.Equal(t, 2, res.Metadata["member_count"])
}

func TestUnknownFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mystery.bin")
	require.NoError(t, os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o644))

	res, err := NewRegistry().Extract(path, types.KindOther)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, int64(3), res.Metadata["size_bytes"])
	assert.Equal(t, ".bin", res.Metadata["extension"])
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := NewRegistry().Extract(filepath.Join(t.TempDir(), "gone.txt"), types.KindText)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExtraction)
}

func TestAudioExtractor_Untagged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noise.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0o644))

	res, err := NewRegistry().Extract(path, types.KindAudio)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Equal(t, int64(12), res.Metadata["size_bytes"])
}
