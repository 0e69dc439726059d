package extractor

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// maxPDFPages bounds how many pages contribute text; documents front-load
// their most descriptive content.
const maxPDFPages = 5

// documentExtractor handles PDF and Word documents.
type documentExtractor struct {
	limit int
}

func (d *documentExtractor) Extract(path string) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return d.extractPDF(path)
	case ".docx":
		return d.extractDocx(path)
	default:
		// Legacy .doc and friends: no parser available, metadata only.
		return (&unknownExtractor{}).Extract(path)
	}
}

func (d *documentExtractor) extractPDF(path string) (*Result, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = doc.Close() }()

	pages := doc.NumPage()
	var b strings.Builder
	for i := 0; i < pages && i < maxPDFPages; i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	text := sanitizeUTF8([]byte(b.String()))
	return &Result{
		Text: truncate(text, d.limit),
		Metadata: map[string]any{
			"page_count": pages,
			"char_count": len(text),
		},
	}, nil
}

// extractDocx pulls paragraph text out of word/document.xml. A DOCX file is
// a zip container; the visible text lives in <w:t> elements.
func (d *documentExtractor) extractDocx(path string) (*Result, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer func() { _ = r.Close() }()

	var docXML io.ReadCloser
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("open document.xml: %w", err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("no word/document.xml in %s", filepath.Base(path))
	}
	defer func() { _ = docXML.Close() }()

	text, paragraphs, err := docxText(docXML)
	if err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	return &Result{
		Text: truncate(text, d.limit),
		Metadata: map[string]any{
			"paragraph_count": paragraphs,
			"char_count":      len(text),
		},
	}, nil
}

// docxText streams the XML token-wise, collecting character data inside
// <w:t> runs and inserting newlines at paragraph boundaries.
func docxText(r io.Reader) (string, int, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	paragraphs := 0
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs++
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}

	return strings.TrimSpace(b.String()), paragraphs, nil
}
