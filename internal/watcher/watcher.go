package watcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"orgfhir/internal/config"
	"orgfhir/internal/fhir"
	"orgfhir/internal/objstore"
	"orgfhir/internal/pipeline"
)

const metaBundleDigest = "watch.last_bundle_digest"

type Downloader interface {
	DownloadAll(ctx context.Context, dir string, sources []string) (objstore.SyncResult, error)
}

type Submitter interface {
	SubmitTransaction(ctx context.Context, bundle fhir.Bundle) ([]byte, error)
}

type MetadataStore interface {
	GetMetadata(ctx context.Context, key string) (*string, error)
	SetMetadata(ctx context.Context, key, value string) error
}

// Service periodically refreshes the data directory from object storage,
// cleans it and rewrites the generated bundle. With a Submitter it also
// pushes a transaction whenever the generated resources change.
type Service struct {
	cfg      config.Config
	dir      string
	log      zerolog.Logger
	sync     Downloader
	submit   Submitter
	meta     MetadataStore
	pipeline *pipeline.Service
	newID    func() string
	last     string
}

func NewService(cfg config.Config, dir string, sync Downloader, submit Submitter, meta MetadataStore, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		dir:      dir,
		log:      logger,
		sync:     sync,
		submit:   submit,
		meta:     meta,
		pipeline: pipeline.NewService(cfg, logger),
		newID:    fhir.NewUUID,
	}
}

type CycleResult struct {
	Downloaded int
	Tables     int
	Resources  int
	Changed    bool
	Pushed     bool
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.WatchIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		res, err := s.RunCycle(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("watch cycle failed")
		} else {
			s.log.Info().
				Int("downloaded", res.Downloaded).
				Int("tables", res.Tables).
				Int("resources", res.Resources).
				Bool("changed", res.Changed).
				Bool("pushed", res.Pushed).
				Msg("watch cycle done")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{}

	synced, err := s.sync.DownloadAll(ctx, s.dir, s.cfg.Sources)
	if err != nil {
		return res, fmt.Errorf("download: %w", err)
	}
	res.Downloaded = len(synced.Transferred)

	cleaned, err := s.pipeline.Clean(s.dir)
	if err != nil {
		return res, fmt.Errorf("clean: %w", err)
	}
	res.Tables = len(cleaned.Tables)

	entities, err := s.pipeline.Entities(s.dir)
	if err != nil {
		return res, fmt.Errorf("derive: %w", err)
	}
	resources := fhir.FromEntities(entities)
	res.Resources = len(resources)

	var buf bytes.Buffer
	if err := fhir.NewCollectionBundle(resources).WriteJSON(&buf); err != nil {
		return res, err
	}
	if err := writeFile(s.cfg.GeneratedFile, buf.Bytes()); err != nil {
		return res, err
	}

	sum := sha256.Sum256(buf.Bytes())
	digest := hex.EncodeToString(sum[:])
	previous, err := s.lastDigest(ctx)
	if err != nil {
		return res, err
	}
	res.Changed = digest != previous
	if !res.Changed {
		return res, nil
	}
	if s.submit == nil {
		s.last = digest
		return res, nil
	}

	if _, err := s.submit.SubmitTransaction(ctx, fhir.NewTransactionBundle(resources, s.newID)); err != nil {
		return res, fmt.Errorf("push: %w", err)
	}
	res.Pushed = true
	s.last = digest
	if s.meta != nil {
		if err := s.meta.SetMetadata(ctx, metaBundleDigest, digest); err != nil {
			return res, err
		}
	}
	return res, nil
}

// lastDigest returns the digest of the last pushed bundle. Without a push
// target only the in-memory value of this process is used.
func (s *Service) lastDigest(ctx context.Context) (string, error) {
	if s.meta == nil || s.submit == nil || s.last != "" {
		return s.last, nil
	}
	v, err := s.meta.GetMetadata(ctx, metaBundleDigest)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}
