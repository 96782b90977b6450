package pipeline

import (
	"math/rand/v2"
	"strings"

	"orgfhir/internal"
	"orgfhir/internal/util"
)

const (
	mockEmailColumn = "email"
	mockPhoneColumn = "telephone_number"
	legacyContact   = "contact"
)

type MockContacts struct {
	domain string
	rng    *rand.Rand
}

func NewMockContacts(domain string, seed uint64) *MockContacts {
	return &MockContacts{domain: domain, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Apply drops any legacy contact column and writes email and telephone_number
// columns. Every department gets one email and one phone shared by all its
// rows; without a department column each row gets its own.
func (m *MockContacts) Apply(table internal.Table) internal.Table {
	out := dropColumns(table, func(name string) bool {
		lower := strings.ToLower(name)
		return lower == legacyContact || name == mockEmailColumn || name == mockPhoneColumn
	})

	var dept []internal.Cell
	for _, alias := range DepartmentAliases() {
		if values, ok := out.Column(alias); ok {
			dept = values
			break
		}
	}

	emails := map[string]string{}
	phones := map[string]string{}
	out.Columns = append(out.Columns, mockEmailColumn, mockPhoneColumn)
	for i := range out.Rows {
		var email, phone string
		if dept == nil || !dept[i].Valid || util.IsBlank(dept[i].Value) {
			email, phone = m.email(""), m.phone()
		} else {
			key := dept[i].Value
			if _, ok := emails[key]; !ok {
				emails[key] = m.email(key)
				phones[key] = m.phone()
			}
			email, phone = emails[key], phones[key]
		}
		out.Rows[i] = append(out.Rows[i], internal.Str(email), internal.Str(phone))
	}
	return out
}

func (m *MockContacts) email(name string) string {
	local := util.EmailLocalPart(name)
	if local == "" {
		local = m.randomString("abcdefghijklmnopqrstuvwxyz", 8)
	}
	return local + "@" + m.domain
}

func (m *MockContacts) phone() string {
	return util.FormatPhone(m.randomString("0123456789", 9))
}

func (m *MockContacts) randomString(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[m.rng.IntN(len(alphabet))]
	}
	return string(b)
}

func dropColumns(table internal.Table, drop func(string) bool) internal.Table {
	keep := []int{}
	out := internal.Table{}
	for i, c := range table.Columns {
		if drop(c) {
			continue
		}
		keep = append(keep, i)
		out.Columns = append(out.Columns, c)
	}
	out.Rows = make([][]internal.Cell, len(table.Rows))
	for r, row := range table.Rows {
		cells := make([]internal.Cell, len(keep))
		for j, idx := range keep {
			if idx < len(row) {
				cells[j] = row[idx]
			}
		}
		out.Rows[r] = cells
	}
	return out
}
