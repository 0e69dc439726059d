package extractor

import (
	"archive/zip"
	"fmt"
	"strings"
)

// maxArchiveMembers caps how many member names are indexed per archive.
const maxArchiveMembers = 50

// archiveExtractor lists zip member names so an archive is findable by what
// it contains, without unpacking anything.
type archiveExtractor struct{}

func (a *archiveExtractor) Extract(path string) (*Result, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	var names []string
	var totalUncompressed uint64
	for _, f := range r.File {
		totalUncompressed += f.UncompressedSize64
		if f.FileInfo().IsDir() {
			continue
		}
		if len(names) < maxArchiveMembers {
			names = append(names, f.Name)
		}
	}

	return &Result{
		Text: strings.Join(names, "\n"),
		Metadata: map[string]any{
			"member_count":       len(r.File),
			"uncompressed_bytes": totalUncompressed,
		},
	}, nil
}
