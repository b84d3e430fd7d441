// Package archive keeps an audit trail of delivered notifications.
// Records are written for inspection only and are never read back into the
// watcher's dedup state.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"

	"homerun-notifier/pkg/highlight"
)

const prefix = "notified/"

// Store writes records to a Cloud Storage bucket, or to a local directory
// when localPath is set.
type Store struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// New creates a new archive store.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// Key returns the object name for a record, grouped by the record's date.
// Returns "" when the highlight id is not safe to use as a file name.
func Key(rec *highlight.Record) string {
	id := rec.HighlightID
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return ""
	}
	return fmt.Sprintf("%s%s/%s.json", prefix, rec.SentAt.UTC().Format(time.DateOnly), id)
}

// Save writes a record.
func (s *Store) Save(ctx context.Context, rec *highlight.Record) error {
	key := Key(rec)
	if key == "" {
		return fmt.Errorf("invalid highlight id %q", rec.HighlightID)
	}
	s.logger.Debug("Saving notification record", "key", key)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	// Local filesystem storage
	if s.localPath != "" {
		filePath := filepath.Join(s.localPath, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			return fmt.Errorf("create local archive directory: %w", err)
		}
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local archive: %w", err)
		}
		s.logger.Info("Notification archived to local storage", "path", filePath)
		return nil
	}

	err = retry.Do(
		func() error {
			w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					s.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			s.logger.Info("Retrying archive write after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}

	s.logger.Info("Notification archived", "bucket", s.bucket, "key", key)
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*highlight.Record, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}

	var recs []*highlight.Record
	for _, key := range keys {
		rec, err := s.load(ctx, key)
		if err != nil {
			s.logger.Warn("Failed to load notification record", "key", key, "error", err)
			continue
		}
		recs = append(recs, rec)
	}

	slices.SortFunc(recs, func(a, b *highlight.Record) int {
		return b.SentAt.Compare(a.SentAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string

	if s.localPath != "" {
		root := filepath.Join(s.localPath, filepath.FromSlash(prefix))
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
				return nil
			}
			rel, err := filepath.Rel(s.localPath, p)
			if err != nil {
				return err
			}
			keys = append(keys, filepath.ToSlash(rel))
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("walk local archive: %w", err)
		}
		return keys, nil
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate storage: %w", err)
		}
		if path.Ext(attrs.Name) == ".json" {
			keys = append(keys, attrs.Name)
		}
	}
	return keys, nil
}

func (s *Store) load(ctx context.Context, key string) (*highlight.Record, error) {
	var data []byte

	if s.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(s.localPath, filepath.FromSlash(key)))
		if err != nil {
			return nil, fmt.Errorf("read from local archive: %w", err)
		}
	} else {
		r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("open storage reader: %w", err)
		}
		defer func() {
			if closeErr := r.Close(); closeErr != nil {
				s.logger.Warn("Failed to close storage reader", "error", closeErr)
			}
		}()
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read from storage: %w", err)
		}
	}

	var rec highlight.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}
