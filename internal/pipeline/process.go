package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"orgfhir/internal"
	"orgfhir/internal/config"
)

type Service struct {
	cfg        config.Config
	log        zerolog.Logger
	normalizer *Normalizer
	deriver    *Deriver
}

func NewService(cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		log:        logger,
		normalizer: NewNormalizer(logger),
		deriver:    NewDeriver(logger),
	}
}

type CleanResult struct {
	Tables []internal.CanonicalTable
	Paths  []string
}

// Clean loads every configured source from dir, normalizes it and writes the
// cleaned CSV back into dir.
func (s *Service) Clean(dir string) (CleanResult, error) {
	tables, err := s.Load(dir)
	if err != nil {
		return CleanResult{}, err
	}
	paths, err := SaveCleaned(dir, tables)
	if err != nil {
		return CleanResult{Tables: tables, Paths: paths}, err
	}
	for i, p := range paths {
		s.log.Info().Str("source", tables[i].Source).Str("path", p).Int("rows", len(tables[i].Rows)).Msg("saved cleaned table")
	}
	return CleanResult{Tables: tables, Paths: paths}, nil
}

// Load reads and normalizes the configured sources without writing anything.
// Already cleaned tables pass through unchanged.
func (s *Service) Load(dir string) ([]internal.CanonicalTable, error) {
	start := time.Now()
	sources, err := LoadDir(dir, s.cfg.Sources, s.log)
	if err != nil {
		return nil, err
	}
	tables := s.normalizer.NormalizeAll(sources)
	s.log.Debug().Int("tables", len(tables)).Dur("took", time.Since(start)).Msg("sources normalized")
	return tables, nil
}

// Entities loads and normalizes dir and derives the entity list.
func (s *Service) Entities(dir string) ([]internal.Entity, error) {
	tables, err := s.Load(dir)
	if err != nil {
		return nil, err
	}
	entities := s.deriver.Derive(tables)
	s.log.Info().Int("tables", len(tables)).Int("entities", len(entities)).Msg("entities derived")
	return entities, nil
}

// Contacts loads and normalizes dir and returns one contact per department.
func (s *Service) Contacts(dir string) ([]internal.Contact, error) {
	tables, err := s.Load(dir)
	if err != nil {
		return nil, err
	}
	return ContactsFromTables(tables), nil
}

type MockResult struct {
	Updated int
	Failed  int
}

// Mock rewrites every CSV file in dir with generated contact columns. Files
// that fail are logged and skipped.
func (s *Service) Mock(dir string, seed uint64) (MockResult, error) {
	paths, err := csvFiles(dir)
	if err != nil {
		return MockResult{}, err
	}

	gen := NewMockContacts(s.cfg.MockEmailDomain, seed)
	res := MockResult{}
	for _, path := range paths {
		table, err := LoadTable(path)
		if err == nil {
			err = WriteCSV(gen.Apply(table), path)
		}
		if err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("failed to add mock contacts")
			res.Failed++
			continue
		}
		s.log.Info().Str("path", path).Msg("updated mock contacts")
		res.Updated++
	}
	return res, nil
}

func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}
