package pipeline

import (
	"html"
	"strings"

	"github.com/rs/zerolog"

	"orgfhir/internal"
	"orgfhir/internal/util"
)

const (
	narrativeOpen        = `<div xmlns="http://www.w3.org/1999/xhtml">`
	narrativeClose       = `</div>`
	descriptionSeparator = "; "
)

type Deriver struct {
	log zerolog.Logger
}

func NewDeriver(logger zerolog.Logger) *Deriver {
	return &Deriver{log: logger}
}

// Derive builds organization and process entities for every table, in table
// order. Tables are handled independently; nothing is merged across them.
func (d *Deriver) Derive(tables []internal.CanonicalTable) []internal.Entity {
	out := []internal.Entity{}
	for _, t := range tables {
		out = append(out, d.DeriveTable(t)...)
	}
	return out
}

func (d *Deriver) DeriveTable(t internal.CanonicalTable) []internal.Entity {
	out := []internal.Entity{}
	if len(t.Rows) == 0 {
		d.log.Debug().Str("source", t.Source).Msg("empty table, nothing to derive")
		return out
	}

	// The first department in the file is treated as the parent of every
	// other department in the same file.
	parentName := t.Rows[0].Department
	parentID := ""
	if !util.IsBlank(parentName) {
		parentID = util.SanitizeID(parentName)
	}

	for _, dept := range groupRows(t.Rows, func(r internal.CanonicalRow) string { return r.Department }) {
		org := buildOrganization(dept.key, dept.rows)
		if dept.key != parentName && parentID != "" {
			org.ParentID = util.StringPtr(parentID)
			org.ParentName = util.StringPtr(parentName)
		}
		if org.ID == "" {
			d.log.Warn().Str("source", t.Source).Str("department", dept.key).Msg("skipping organization with invalid name")
		} else {
			out = append(out, internal.Entity{Kind: internal.KindOrganization, Organization: org})
		}

		for _, proc := range groupRows(dept.rows, func(r internal.CanonicalRow) string { return r.Process }) {
			p := buildProcess(dept.key, proc.key, proc.rows)
			if p.Name == "" {
				d.log.Warn().Str("source", t.Source).Str("department", dept.key).Str("process", proc.key).Msg("skipping process with invalid name")
				continue
			}
			out = append(out, internal.Entity{Kind: internal.KindProcess, Process: p})
		}
	}

	d.log.Debug().Str("source", t.Source).Int("entities", len(out)).Msg("entities derived")
	return out
}

func buildOrganization(name string, rows []internal.CanonicalRow) *internal.OrganizationEntity {
	return &internal.OrganizationEntity{
		ID:            util.SanitizeID(name),
		DisplayName:   name,
		NarrativeHTML: narrative(name, distinctNonBlank(rows, func(r internal.CanonicalRow) string { return r.MandateRelation })),
	}
}

func buildProcess(department, process string, rows []internal.CanonicalRow) *internal.ProcessEntity {
	descriptions := make([]string, 0, len(rows))
	for _, r := range rows {
		if !util.IsBlank(r.Description) {
			descriptions = append(descriptions, r.Description)
		}
	}
	return &internal.ProcessEntity{
		ID:          util.SanitizeID(department + "-" + process),
		Name:        util.SanitizeID(process),
		Title:       process,
		Publisher:   department,
		Description: strings.Join(descriptions, descriptionSeparator),
		Status:      internal.ProcessStatusActive,
	}
}

func narrative(heading string, items []string) string {
	var b strings.Builder
	b.WriteString(narrativeOpen)
	b.WriteString("<h3>")
	b.WriteString(html.EscapeString(heading))
	b.WriteString("</h3><ul>")
	for _, item := range items {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(item))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	b.WriteString(narrativeClose)
	return b.String()
}

type rowGroup struct {
	key  string
	rows []internal.CanonicalRow
}

// groupRows groups rows by key in first-appearance order. Blank keys are
// dropped.
func groupRows(rows []internal.CanonicalRow, key func(internal.CanonicalRow) string) []rowGroup {
	groups := []rowGroup{}
	index := map[string]int{}
	for _, r := range rows {
		k := key(r)
		if util.IsBlank(k) {
			continue
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, rowGroup{key: k})
		}
		groups[i].rows = append(groups[i].rows, r)
	}
	return groups
}

func distinctNonBlank(rows []internal.CanonicalRow, value func(internal.CanonicalRow) string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, r := range rows {
		v := value(r)
		if util.IsBlank(v) {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
