package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractExcel extracts text from .xlsx bytes. Non-empty cells of a row are
// joined with single spaces and each row becomes one line, so the result reads
// as prose for the embedder rather than as a grid. Blank rows and empty sheets
// contribute nothing.
func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("extract Excel: open workbook: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("extract Excel: sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			line := joinCells(row)
			if line == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line)
		}
	}
	return b.String(), nil
}

// joinCells flattens one spreadsheet row, dropping cells that hold only
// whitespace.
func joinCells(row []string) string {
	var b strings.Builder
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(cell)
	}
	return b.String()
}
