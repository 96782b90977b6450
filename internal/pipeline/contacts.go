package pipeline

import (
	"orgfhir/internal"
	"orgfhir/internal/util"
)

// ContactsFromTables returns one contact per department and table, taken from
// the department's first row. Tables keep their order, so a department listed
// in several tables appears once per table and the last one wins on upsert.
func ContactsFromTables(tables []internal.CanonicalTable) []internal.Contact {
	out := []internal.Contact{}
	for _, t := range tables {
		for _, g := range groupRows(t.Rows, func(r internal.CanonicalRow) string { return r.Department }) {
			first := g.rows[0]
			out = append(out, internal.Contact{
				Department: g.key,
				Email:      first.Email,
				Phone:      util.FormatPhone(first.Phone),
			})
		}
	}
	return out
}
