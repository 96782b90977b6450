package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"orgfhir/internal"
	"orgfhir/internal/util"
)

// sourceExtensions is the lookup order used when a source name has more
// than one exported file.
var sourceExtensions = []string{".csv", ".xlsx", ".html", ".htm"}

// naValues are the cell texts spreadsheet exports use for "no value". They
// load as null, like empty CSV fields.
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {}, "-NaN": {}, "-nan": {},
	"1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

var ErrUnsupportedFormat = errors.New("unsupported table format")

// LoadTable reads one tabular file, picking the parser from the extension.
func LoadTable(path string) (internal.Table, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return internal.Table{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseCSV(bytes.NewReader(blob))
	case ".xlsx":
		return parseXLSX(blob)
	case ".html", ".htm":
		return parseHTMLTable(string(blob))
	default:
		return internal.Table{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadDir loads every configured source from dir. Missing or unreadable files
// are logged and skipped.
func LoadDir(dir string, sources []string, log zerolog.Logger) ([]internal.Source, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}

	out := make([]internal.Source, 0, len(sources))
	for _, name := range sources {
		path, ok := findSourceFile(dir, name)
		if !ok {
			log.Warn().Str("source", name).Str("dir", dir).Msg("source file not found")
			continue
		}
		table, err := LoadTable(path)
		if err != nil {
			log.Error().Err(err).Str("source", name).Str("path", path).Msg("failed to load source")
			continue
		}
		log.Info().Str("source", name).Int("rows", len(table.Rows)).Msg("source loaded")
		out = append(out, internal.Source{Name: name, Table: table})
	}
	return out, nil
}

func findSourceFile(dir, name string) (string, bool) {
	for _, ext := range sourceExtensions {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

func parseCSV(r io.Reader) (internal.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return internal.Table{}, nil
	}
	if err != nil {
		return internal.Table{}, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	table := internal.Table{Columns: normalizeHeader(header)}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return internal.Table{}, err
		}
		if isBlankRecord(record) {
			continue
		}
		row := make([]internal.Cell, len(record))
		for i, v := range record {
			row[i] = csvCell(v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func csvCell(v string) internal.Cell {
	if _, ok := naValues[v]; ok {
		return internal.Null
	}
	return internal.Str(v)
}

func parseXLSX(content []byte) (internal.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return internal.Table{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return internal.Table{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return internal.Table{}, err
	}

	table := internal.Table{}
	for _, row := range rows {
		if isBlankRecord(row) {
			continue
		}
		if table.Columns == nil {
			table.Columns = normalizeHeader(row)
			continue
		}
		table.Rows = append(table.Rows, toCells(row))
	}
	return table, nil
}

func parseHTMLTable(doc string) (internal.Table, error) {
	root, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return internal.Table{}, err
	}

	table := internal.Table{}
	root.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := []string{}
		tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, util.NormalizeSpaces(cell.Text()))
		})
		if isBlankRecord(cells) {
			return
		}
		if table.Columns == nil {
			table.Columns = normalizeHeader(cells)
			return
		}
		table.Rows = append(table.Rows, toCells(cells))
	})
	return table, nil
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func toCells(values []string) []internal.Cell {
	out := make([]internal.Cell, len(values))
	for i, v := range values {
		if v == "" {
			out[i] = internal.Null
			continue
		}
		out[i] = internal.Str(v)
	}
	return out
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
