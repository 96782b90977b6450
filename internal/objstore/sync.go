package objstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	metaLastDownload = "storage.last_download"
	metaLastUpload   = "storage.last_upload"
	csvContentType   = "text/csv"
)

// MetadataStore records sync timestamps. A nil store disables recording.
type MetadataStore interface {
	SetMetadata(ctx context.Context, key, value string) error
}

type SyncResult struct {
	Transferred []string
	Missing     []string
	Failed      []string
}

type SyncService struct {
	client *Client
	meta   MetadataStore
	log    zerolog.Logger
}

func NewSyncService(client *Client, meta MetadataStore, logger zerolog.Logger) *SyncService {
	return &SyncService{client: client, meta: meta, log: logger}
}

// DownloadAll fetches <source>.csv for every source into dir. Missing or
// failing objects are logged and skipped; only a context or filesystem error
// aborts the run.
func (s *SyncService) DownloadAll(ctx context.Context, dir string, sources []string) (SyncResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{}
	for _, name := range sources {
		objectPath := name + ".csv"
		content, err := s.client.Download(ctx, objectPath)
		switch {
		case errors.Is(err, ErrNotFound):
			s.log.Warn().Str("bucket", s.client.Bucket()).Str("object", objectPath).Msg("object not found")
			res.Missing = append(res.Missing, objectPath)
			continue
		case errors.Is(err, ErrNotConfigured) || ctx.Err() != nil:
			return res, err
		case err != nil:
			s.log.Error().Err(err).Str("object", objectPath).Msg("failed to download object")
			res.Failed = append(res.Failed, objectPath)
			continue
		}

		if err := os.WriteFile(filepath.Join(dir, objectPath), content, 0o644); err != nil {
			return res, err
		}
		s.log.Info().Str("object", objectPath).Int("bytes", len(content)).Msg("downloaded object")
		res.Transferred = append(res.Transferred, objectPath)
	}

	s.record(ctx, metaLastDownload)
	return res, nil
}

// UploadDir uploads every CSV file in dir under its file name, overwriting
// existing objects.
func (s *SyncService) UploadDir(ctx context.Context, dir string) (SyncResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return SyncResult{}, err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	res := SyncResult{}
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return res, err
		}
		if err := s.client.Upload(ctx, name, content, csvContentType); err != nil {
			if errors.Is(err, ErrNotConfigured) || ctx.Err() != nil {
				return res, err
			}
			s.log.Error().Err(err).Str("object", name).Msg("failed to upload object")
			res.Failed = append(res.Failed, name)
			continue
		}
		s.log.Info().Str("bucket", s.client.Bucket()).Str("object", name).Msg("uploaded object")
		res.Transferred = append(res.Transferred, name)
	}

	s.record(ctx, metaLastUpload)
	return res, nil
}

func (s *SyncService) record(ctx context.Context, key string) {
	if s.meta == nil {
		return
	}
	if err := s.meta.SetMetadata(ctx, key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to record sync time")
	}
}
