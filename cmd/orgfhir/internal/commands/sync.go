package commands

import (
	"context"
	"fmt"

	"orgfhir/internal/objstore"
)

type DownloadCmd struct{}

func (c *DownloadCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	var res objstore.SyncResult
	defer func() { rt.finish(ctx, "download", syncCounts(res), err) }()

	if err := rt.cfg.Require("SUPABASE_URL", rt.cfg.SupabaseURL); err != nil {
		return err
	}
	if err := rt.cfg.Require("SUPABASE_KEY", rt.cfg.SupabaseKey); err != nil {
		return err
	}

	res, err = rt.syncService().DownloadAll(ctx, rt.dir, rt.cfg.Sources)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	rt.log.Info().
		Str("dir", rt.dir).
		Int("downloaded", len(res.Transferred)).
		Int("missing", len(res.Missing)).
		Int("failed", len(res.Failed)).
		Msg("download complete")
	return nil
}

type UploadCmd struct{}

func (c *UploadCmd) Run(ctx context.Context, globals *Globals) (err error) {
	rt, err := setup(globals)
	if err != nil {
		return err
	}
	var res objstore.SyncResult
	defer func() { rt.finish(ctx, "upload", syncCounts(res), err) }()

	if err := rt.cfg.Require("SUPABASE_URL", rt.cfg.SupabaseURL); err != nil {
		return err
	}
	if err := rt.cfg.Require("SUPABASE_KEY", rt.cfg.SupabaseKey); err != nil {
		return err
	}

	res, err = rt.syncService().UploadDir(ctx, rt.dir)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	rt.log.Info().
		Str("bucket", rt.cfg.StorageBucket).
		Int("uploaded", len(res.Transferred)).
		Int("failed", len(res.Failed)).
		Msg("upload complete")
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d files failed to upload", len(res.Failed), len(res.Failed)+len(res.Transferred))
	}
	return nil
}

func syncCounts(res objstore.SyncResult) map[string]int {
	return map[string]int{
		"transferred": len(res.Transferred),
		"missing":     len(res.Missing),
		"failed":      len(res.Failed),
	}
}
