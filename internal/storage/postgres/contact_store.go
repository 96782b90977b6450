package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"orgfhir/internal"
	"orgfhir/internal/storage"
)

const createContactsTable = `
	CREATE TABLE IF NOT EXISTS organization_contacts (
		id SERIAL PRIMARY KEY,
		department_name TEXT NOT NULL,
		email TEXT,
		phone_number TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(department_name)
	)
`

const upsertContact = `
	INSERT INTO organization_contacts (department_name, email, phone_number, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (department_name)
	DO UPDATE SET
		email = EXCLUDED.email,
		phone_number = EXCLUDED.phone_number,
		updated_at = NOW()
`

// ContactStore implements storage.ContactStore on PostgreSQL.
type ContactStore struct {
	pool *pgxpool.Pool
}

func NewContactStore(pool *pgxpool.Pool) *ContactStore {
	return &ContactStore{pool: pool}
}

// Open connects to connString and returns a store that owns the pool.
func Open(ctx context.Context, connString string) (*ContactStore, error) {
	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	if err != nil {
		return nil, err
	}
	return NewContactStore(pool), nil
}

func (s *ContactStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *ContactStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createContactsTable); err != nil {
		return fmt.Errorf("failed to create organization_contacts: %w", mapPostgresError(err))
	}
	log.Debug().Msg("Table organization_contacts checked")
	return nil
}

// UpsertContacts writes all contacts in one transaction. Either every row is
// written or none is.
func (s *ContactStore) UpsertContacts(ctx context.Context, contacts []internal.Contact) (int, error) {
	batch, err := storage.PrepareContacts(contacts)
	if err != nil {
		return 0, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, c := range batch {
			b.Queue(upsertContact, c.Department, nullString(c.Email), nullString(c.Phone))
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert contacts: %w", mapPostgresError(err))
	}

	log.Debug().Int("count", len(batch)).Msg("Upserted contacts")
	return len(batch), nil
}

const listContacts = `
	SELECT department_name, COALESCE(email, ''), COALESCE(phone_number, '')
	FROM organization_contacts
	ORDER BY id ASC
`

func (s *ContactStore) ListContacts(ctx context.Context) ([]internal.Contact, error) {
	rows, err := s.pool.Query(ctx, listContacts)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", mapPostgresError(err))
	}
	contacts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (internal.Contact, error) {
		var c internal.Contact
		err := row.Scan(&c.Department, &c.Email, &c.Phone)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", mapPostgresError(err))
	}
	return contacts, nil
}

func nullString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

var _ storage.ContactStore = (*ContactStore)(nil)
