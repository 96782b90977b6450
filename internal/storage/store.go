package storage

import (
	"context"
	"errors"
	"strings"

	"orgfhir/internal"
)

var ErrNoContacts = errors.New("no contacts to upsert")

// ContactStore persists one contact row per department name.
type ContactStore interface {
	EnsureSchema(ctx context.Context) error
	UpsertContacts(ctx context.Context, contacts []internal.Contact) (int, error)
	ListContacts(ctx context.Context) ([]internal.Contact, error)
	Close() error
}

// PrepareContacts trims department names and drops contacts without one.
// Later contacts for the same department replace earlier ones in place, so the
// batch never upserts one key twice.
func PrepareContacts(contacts []internal.Contact) ([]internal.Contact, error) {
	out := []internal.Contact{}
	index := map[string]int{}
	for _, c := range contacts {
		c.Department = strings.TrimSpace(c.Department)
		if c.Department == "" {
			continue
		}
		if i, ok := index[c.Department]; ok {
			out[i] = c
			continue
		}
		index[c.Department] = len(out)
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrNoContacts
	}
	return out, nil
}

// nullable maps blank strings to NULL.
func nullable(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
