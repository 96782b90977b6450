package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"orgfhir/internal"
)

const maxSheetNameLen = 31

var sheetNameRepl = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")

// WriteCSV writes a table with its header row. Null cells are written empty.
func WriteCSV(table internal.Table, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return err
	}
	for _, row := range table.Rows {
		record := make([]string, len(table.Columns))
		for i := range record {
			if i < len(row) {
				record[i] = row[i].Value
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// SaveCleaned writes each cleaned table to <dir>/<source>.csv and returns the
// written paths.
func SaveCleaned(dir string, tables []internal.CanonicalTable) ([]string, error) {
	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(dir, t.Source+".csv")
		if err := WriteCSV(t.Table(), path); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ExportXLSX writes all cleaned tables into one workbook, one sheet per source.
func ExportXLSX(tables []internal.CanonicalTable, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	taken := map[string]bool{}
	for i, t := range tables {
		sheet := uniqueSheetName(sheetName(t.Source), taken)
		if i == 0 {
			if err := f.SetSheetName(first, sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return err
		}

		for col, h := range internal.CanonicalColumns {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			_ = f.SetCellValue(sheet, cell, h)
		}
		for r, row := range t.Rows {
			for col, v := range row.Values() {
				cell, _ := excelize.CoordinatesToCellName(col+1, r+2)
				_ = f.SetCellValue(sheet, cell, v)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func sheetName(source string) string {
	name := strings.TrimSpace(sheetNameRepl.Replace(source))
	if name == "" {
		name = "Sheet"
	}
	if r := []rune(name); len(r) > maxSheetNameLen {
		name = string(r[:maxSheetNameLen])
	}
	return name
}

// uniqueSheetName appends " (2)", " (3)", ... until name is free. Sheet names
// compare case-insensitively and excelize reuses an existing sheet silently.
func uniqueSheetName(name string, taken map[string]bool) string {
	candidate := name
	for n := 2; taken[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		base := []rune(name)
		if len(base)+len(suffix) > maxSheetNameLen {
			base = base[:maxSheetNameLen-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
