package pipeline

import (
	"github.com/rs/zerolog"

	"orgfhir/internal"
	"orgfhir/internal/util"
)

type fieldAliases struct {
	field    string
	aliases  []string
	optional bool
}

// columnAliases lists, per canonical field, every historical column name in
// priority order. The first column present in a table wins.
var columnAliases = []fieldAliases{
	{field: internal.ColDepartment, aliases: []string{"department", "oddeleni", "Oddělení", "Útvar/oddělení", "Úsek/oddělení"}},
	{field: internal.ColProcess, aliases: []string{"process", "proces", "Název procesu", "Procesy", "Proces"}},
	{field: internal.ColDescription, aliases: []string{"description", "popis_procesu", "Popis procesu", "Popis procesu v organizačním řádu OPZ"}},
	{field: internal.ColMandateRelation, aliases: []string{"mandate_relation", "vazba_na_org_rad", "Vazba na Organizační řád IO"}},
	{field: internal.ColEmail, aliases: []string{"email"}, optional: true},
	{field: internal.ColPhone, aliases: []string{"phone", "telephone_number"}, optional: true},
}

// interviewColumn holds interview-based descriptions in one historical
// variant; it is appended to the description.
const interviewColumn = "Popis na základě rozhovoru"

const placeholderValue = "?"

// DepartmentAliases returns the department column names in priority order.
func DepartmentAliases() []string {
	return append([]string(nil), columnAliases[0].aliases...)
}

type Normalizer struct {
	log zerolog.Logger
}

func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{log: logger}
}

func (n *Normalizer) NormalizeAll(sources []internal.Source) []internal.CanonicalTable {
	out := make([]internal.CanonicalTable, 0, len(sources))
	for _, src := range sources {
		out = append(out, n.Normalize(src.Table, src.Name))
	}
	return out
}

// Normalize maps a raw table onto the canonical six-column shape. Missing
// canonical columns are filled with empty strings and reported on the logger.
func (n *Normalizer) Normalize(raw internal.Table, source string) internal.CanonicalTable {
	columns := make(map[string][]internal.Cell, len(columnAliases))
	for _, fa := range columnAliases {
		values, name, ok := firstColumn(raw, fa.aliases)
		if ok {
			columns[fa.field] = values
			n.log.Debug().Str("source", source).Str("field", fa.field).Str("column", name).Msg("column mapped")
		}
	}

	if interview, ok := raw.Column(interviewColumn); ok {
		columns[internal.ColDescription] = mergeDescription(columns[internal.ColDescription], interview)
	}

	for _, fa := range columnAliases {
		if _, ok := columns[fa.field]; !ok && !fa.optional {
			n.log.Warn().Str("source", source).Str("field", fa.field).Msg("column not found, filling with empty values")
		}
	}

	out := internal.CanonicalTable{Source: source, Rows: make([]internal.CanonicalRow, 0, len(raw.Rows))}
	for i := range raw.Rows {
		value := func(field string) string {
			values, ok := columns[field]
			if !ok {
				return ""
			}
			return cleanCell(values[i])
		}
		row := internal.CanonicalRow{
			Department:      value(internal.ColDepartment),
			Process:         value(internal.ColProcess),
			Description:     value(internal.ColDescription),
			MandateRelation: value(internal.ColMandateRelation),
			Email:           value(internal.ColEmail),
			Phone:           value(internal.ColPhone),
		}
		if !hasContent(row) {
			continue
		}
		out.Rows = append(out.Rows, row)
	}

	n.log.Debug().Str("source", source).Int("rows_in", len(raw.Rows)).Int("rows_out", len(out.Rows)).Msg("table normalized")
	return out
}

func firstColumn(raw internal.Table, aliases []string) ([]internal.Cell, string, bool) {
	for _, name := range aliases {
		if values, ok := raw.Column(name); ok {
			return values, name, true
		}
	}
	return nil, "", false
}

// mergeDescription joins description and interview text with a space,
// treating missing values as empty. Without a description column the
// interview column is used as is.
func mergeDescription(description, interview []internal.Cell) []internal.Cell {
	if description == nil {
		return interview
	}
	out := make([]internal.Cell, len(description))
	for i := range description {
		out[i] = internal.Str(description[i].Value + " " + interview[i].Value)
	}
	return out
}

// cleanCell repairs a cell and blanks nulls and the "?" placeholder. The
// placeholder is matched after repair so a padded "? " cannot survive one
// pass and vanish on the next.
func cleanCell(c internal.Cell) string {
	if !c.Valid {
		return ""
	}
	v := util.RepairText(c.Value)
	if v == placeholderValue {
		return ""
	}
	return v
}

func hasContent(r internal.CanonicalRow) bool {
	return r.Department != "" || r.Process != "" || r.Description != "" || r.MandateRelation != ""
}
