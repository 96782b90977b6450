package internal

// Cell is one spreadsheet value. Valid is false for missing cells.
type Cell struct {
	Value string
	Valid bool
}

func Str(v string) Cell { return Cell{Value: v, Valid: true} }

var Null = Cell{}

// Table is a raw source table with arbitrary, source-defined columns.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column. Short rows yield Null.
func (t Table) Column(name string) ([]Cell, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]Cell, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out, true
}

// Source is one named input collection. Slices of Source keep the caller's
// collection order, which fixes the order of derived entities.
type Source struct {
	Name  string
	Table Table
}

const (
	ColDepartment      = "department"
	ColProcess         = "process"
	ColDescription     = "description"
	ColMandateRelation = "mandate_relation"
	ColEmail           = "email"
	ColPhone           = "phone"
)

// CanonicalColumns is the fixed output column order of a cleaned table.
var CanonicalColumns = []string{ColDepartment, ColProcess, ColDescription, ColMandateRelation, ColEmail, ColPhone}

type CanonicalRow struct {
	Department      string
	Process         string
	Description     string
	MandateRelation string
	Email           string
	Phone           string
}

func (r CanonicalRow) Values() []string {
	return []string{r.Department, r.Process, r.Description, r.MandateRelation, r.Email, r.Phone}
}

type CanonicalTable struct {
	Source string
	Rows   []CanonicalRow
}

// Table converts the canonical rows back to a raw table with the canonical header.
func (t CanonicalTable) Table() Table {
	out := Table{Columns: append([]string(nil), CanonicalColumns...), Rows: make([][]Cell, 0, len(t.Rows))}
	for _, r := range t.Rows {
		values := r.Values()
		row := make([]Cell, len(values))
		for i, v := range values {
			row[i] = Str(v)
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

type EntityKind string

const (
	KindOrganization EntityKind = "organization"
	KindProcess      EntityKind = "process"
)

const ProcessStatusActive = "active"

type OrganizationEntity struct {
	ID            string
	DisplayName   string
	NarrativeHTML string
	ParentID      *string
	ParentName    *string
}

type ProcessEntity struct {
	ID          string
	Name        string
	Title       string
	Publisher   string
	Description string
	Status      string
}

// Entity holds exactly one of Organization or Process, selected by Kind.
type Entity struct {
	Kind         EntityKind
	Organization *OrganizationEntity
	Process      *ProcessEntity
}

func (e Entity) ID() string {
	switch e.Kind {
	case KindOrganization:
		return e.Organization.ID
	case KindProcess:
		return e.Process.ID
	default:
		return ""
	}
}

type Contact struct {
	Department string
	Email      string
	Phone      string
}
