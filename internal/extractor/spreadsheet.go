package extractor

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Bounds keeping huge workbooks from dominating the catalog: early sheets
// and rows usually hold the headers and summary data worth indexing.
const (
	maxSheets       = 3
	maxRowsPerSheet = 20
)

// spreadsheetExtractor flattens workbook cells into searchable lines.
type spreadsheetExtractor struct {
	limit int
}

func (s *spreadsheetExtractor) Extract(path string) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	var parts []string
	for i, sheet := range sheets {
		if i >= maxSheets {
			break
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		var lines []string
		for j, row := range rows {
			if j >= maxRowsPerSheet {
				break
			}
			line := strings.TrimSpace(strings.Join(row, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			parts = append(parts, fmt.Sprintf("Sheet %s: %s", sheet, strings.Join(lines, " | ")))
		}
	}

	text := strings.Join(parts, "\n")
	return &Result{
		Text: truncate(text, s.limit),
		Metadata: map[string]any{
			"sheet_count": len(sheets),
			"char_count":  len(text),
		},
	}, nil
}
