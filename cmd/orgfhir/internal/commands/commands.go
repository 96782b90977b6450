package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"orgfhir/internal/config"
	"orgfhir/internal/objstore"
	"orgfhir/internal/pipeline"
	"orgfhir/internal/storage"
)

type Globals struct {
	Debug   bool
	Dir     string
	Version string
}

// runtime is the per-invocation state shared by all commands.
type runtime struct {
	cfg     config.Config
	log     zerolog.Logger
	dir     string
	db      *storage.DB
	traceID string
	start   time.Time
}

func setup(globals *Globals) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if globals.Debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).With().Timestamp().Logger()

	rt := &runtime{
		cfg:     cfg,
		log:     log.Logger,
		dir:     cfg.DataDir,
		traceID: uuid.New().String(),
		start:   time.Now(),
	}
	if globals.Dir != "" {
		rt.dir = globals.Dir
	}
	rt.log = rt.log.With().Str("trace_id", rt.traceID).Logger()

	// The local store only backs the run log and sync metadata, so a broken
	// database file must not block the actual work.
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		rt.log.Warn().Err(err).Str("path", cfg.DBPath).Msg("local store unavailable, runs will not be recorded")
	} else {
		rt.db = db
	}
	return rt, nil
}

// finish records the run and closes the local store.
func (rt *runtime) finish(ctx context.Context, command string, counts map[string]int, runErr error) {
	if rt.db == nil {
		return
	}
	defer rt.db.Close()

	status := "ok"
	if runErr != nil {
		status = "failed"
	}
	run := storage.Run{
		TraceID: rt.traceID,
		Command: command,
		Status:  status,
		Timings: map[string]float64{"total_ms": float64(time.Since(rt.start).Milliseconds())},
		Counts:  counts,
	}
	if err := rt.db.InsertRun(context.WithoutCancel(ctx), run); err != nil {
		rt.log.Warn().Err(err).Msg("failed to record run")
	}
}

func (rt *runtime) service() *pipeline.Service {
	return pipeline.NewService(rt.cfg, rt.log)
}

func (rt *runtime) syncService() *objstore.SyncService {
	var meta objstore.MetadataStore
	if rt.db != nil {
		meta = rt.db
	}
	return objstore.NewSyncService(objstore.NewClient(rt.cfg), meta, rt.log)
}

// ensureData downloads the sources when the data directory is missing or
// empty and object storage is configured.
func (rt *runtime) ensureData(ctx context.Context) error {
	entries, err := os.ReadDir(rt.dir)
	if err == nil && len(entries) > 0 {
		return nil
	}
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if rt.cfg.SupabaseURL == "" || rt.cfg.SupabaseKey == "" {
		return fmt.Errorf("data directory %s is empty and SUPABASE_URL/SUPABASE_KEY are not set", rt.dir)
	}

	rt.log.Info().Str("dir", rt.dir).Msg("data directory is empty, downloading sources")
	_, err = rt.syncService().DownloadAll(ctx, rt.dir, rt.cfg.Sources)
	return err
}
