package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"orgfhir/internal"
)

func TestSaveCleanedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tables := []internal.CanonicalTable{{Source: "IO", Rows: []internal.CanonicalRow{
		{Department: "IT - Servis", Process: "Zálohování dat", Description: "Denní, noční", MandateRelation: "Čl. 5"},
		{Department: "IT - Servis", Email: "it@fnbrno.cz", Phone: "+420 777 000 111"},
	}}}

	paths, err := SaveCleaned(dir, tables)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "IO.csv")}, paths)

	blob, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	require.Equal(t,
		"department,process,description,mandate_relation,email,phone\n"+
			"IT - Servis,Zálohování dat,\"Denní, noční\",Čl. 5,,\n"+
			"IT - Servis,,,,it@fnbrno.cz,+420 777 000 111\n",
		string(blob))

	raw, err := LoadTable(paths[0])
	require.NoError(t, err)
	require.Equal(t, internal.CanonicalColumns, raw.Columns)
	require.Len(t, raw.Rows, 2)
}

func TestExportXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "export", "cleaned.xlsx")
	tables := []internal.CanonicalTable{
		{Source: "CI", Rows: []internal.CanonicalRow{{Department: "CI", Process: "Audit"}}},
		{Source: "a/b:c", Rows: []internal.CanonicalRow{{Department: "X"}}},
	}

	require.NoError(t, ExportXLSX(tables, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"CI", "a_b_c"}, f.GetSheetList())
	rows, err := f.GetRows("CI")
	require.NoError(t, err)
	require.Equal(t, internal.CanonicalColumns, rows[0])
	require.GreaterOrEqual(t, len(rows[1]), 2)
	require.Equal(t, []string{"CI", "Audit"}, rows[1][:2])
}

func TestSheetName(t *testing.T) {
	require.Equal(t, "Sheet", sheetName("  "))
	require.Equal(t, "x_y", sheetName("x[y"))
	require.Len(t, []rune(sheetName("abcdefghijklmnopqrstuvwxyzabcdefghij")), maxSheetNameLen)
}

func TestExportXLSXDistinctSheets(t *testing.T) {
	out := filepath.Join(t.TempDir(), "cleaned.xlsx")
	long := "abcdefghijklmnopqrstuvwxyzabcdefghij"
	tables := []internal.CanonicalTable{
		{Source: "a/b", Rows: []internal.CanonicalRow{{Department: "first"}}},
		{Source: "a:b", Rows: []internal.CanonicalRow{{Department: "second"}}},
		{Source: long + "1", Rows: []internal.CanonicalRow{{Department: "third"}}},
		{Source: long + "2", Rows: []internal.CanonicalRow{{Department: "fourth"}}},
	}

	require.NoError(t, ExportXLSX(tables, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	require.Equal(t, []string{"a_b", "a_b (2)", long[:maxSheetNameLen], long[:maxSheetNameLen-4] + " (2)"}, sheets)
	for i, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		require.NoError(t, err)
		require.Equal(t, tables[i].Rows[0].Department, rows[1][0])
	}
}

func TestUniqueSheetName(t *testing.T) {
	taken := map[string]bool{}
	require.Equal(t, "IO", uniqueSheetName("IO", taken))
	require.Equal(t, "io (2)", uniqueSheetName("io", taken))
	require.Equal(t, "IO (3)", uniqueSheetName("IO", taken))
}
