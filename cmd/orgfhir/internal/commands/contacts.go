package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"orgfhir/internal"
	"orgfhir/internal/config"
	"orgfhir/internal/storage"
	"orgfhir/internal/storage/postgres"
)

type MockCmd struct {
	Seed uint64 `help:"Seed for generated contacts (0 picks one from the clock)."`
}

func (c *MockCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	defer func() { rt.finish(ctx, "mock", counts, err) }()

	if _, err := os.Stat(rt.dir); err != nil {
		return fmt.Errorf("data directory %s: %w", rt.dir, err)
	}
	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	res, err := rt.service().Mock(rt.dir, seed)
	if err != nil {
		return err
	}
	counts["updated"], counts["failed"] = res.Updated, res.Failed
	rt.log.Info().Int("updated", res.Updated).Int("failed", res.Failed).Msg("mock contacts added")
	return nil
}

type ContactsCmd struct {
	Driver string `help:"Contact database driver (defaults to DB_DRIVER)."`
	List   bool   `help:"Print the stored contacts instead of upserting."`
}

func (c *ContactsCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	counts := map[string]int{}
	defer func() { rt.finish(ctx, "contacts", counts, err) }()

	driver := c.Driver
	if driver == "" {
		driver = rt.cfg.DBDriver
	}
	store, err := rt.contactStore(ctx, driver)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	if c.List {
		stored, err := store.ListContacts(ctx)
		if err != nil {
			return err
		}
		counts["contacts"] = len(stored)
		printContacts(os.Stdout, stored)
		return nil
	}

	if _, err := os.Stat(rt.dir); err != nil {
		return fmt.Errorf("data directory %s: %w", rt.dir, err)
	}
	contacts, err := rt.service().Contacts(rt.dir)
	if err != nil {
		return err
	}
	n, err := store.UpsertContacts(ctx, contacts)
	if err != nil {
		return err
	}
	counts["contacts"] = n
	rt.log.Info().Str("driver", driver).Int("contacts", n).Msg("contacts upserted")
	return nil
}

// contactStore opens the configured contact database. The sqlite store gets
// its own handle so closing it does not end the run log.
func (rt *runtime) contactStore(ctx context.Context, driver string) (storage.ContactStore, error) {
	switch driver {
	case config.DriverPostgres:
		connString, err := rt.cfg.PostgresConnString()
		if err != nil {
			return nil, err
		}
		return postgres.Open(ctx, connString)
	case config.DriverSQLite:
		return storage.Open(rt.cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported contact database driver: %q", driver)
	}
}

func printContacts(w io.Writer, contacts []internal.Contact) {
	for _, c := range contacts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Department, orDash(c.Email), orDash(c.Phone))
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
