package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// PositionSource is the read side of the position store the archiver needs.
type PositionSource interface {
	ListUsers(ctx context.Context) ([]int64, error)
	ListAssets(ctx context.Context, userID int64) ([]string, error)
	Get(ctx context.Context, userID int64, asset string) (domain.Position, error)
}

// SnapshotArchiver periodically writes every monitored position, histories
// included, as JSON lines to snapshots/YYYY/MM/DD/positions-<unix>.jsonl.
type SnapshotArchiver struct {
	writer    domain.BlobWriter
	positions PositionSource
	audit     domain.AuditStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewSnapshotArchiver creates a SnapshotArchiver. audit may be nil.
func NewSnapshotArchiver(writer domain.BlobWriter, positions PositionSource, audit domain.AuditStore, logger *slog.Logger) *SnapshotArchiver {
	return &SnapshotArchiver{
		writer:    writer,
		positions: positions,
		audit:     audit,
		logger:    logger.With(slog.String("component", "snapshot_archiver")),
		now:       time.Now,
	}
}

// SnapshotPath returns the object key for a snapshot taken at t.
func SnapshotPath(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("snapshots/%04d/%02d/%02d/positions-%d.jsonl", t.Year(), t.Month(), t.Day(), t.Unix())
}

// Snapshot uploads the current positions and returns the object key and the
// number of records written. Nothing is uploaded when there are no positions.
func (a *SnapshotArchiver) Snapshot(ctx context.Context) (string, int, error) {
	users, err := a.positions.ListUsers(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: snapshot: list users: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for _, uid := range users {
		assets, err := a.positions.ListAssets(ctx, uid)
		if err != nil {
			return "", 0, fmt.Errorf("s3blob: snapshot: list assets of %d: %w", uid, err)
		}
		for _, asset := range assets {
			pos, err := a.positions.Get(ctx, uid, asset)
			if errors.Is(err, domain.ErrNotFound) {
				continue // removed since listing
			}
			if err != nil {
				return "", 0, fmt.Errorf("s3blob: snapshot: get %d:%s: %w", uid, asset, err)
			}
			if err := enc.Encode(pos); err != nil {
				return "", 0, fmt.Errorf("s3blob: snapshot: encode %s: %w", pos.Key(), err)
			}
			count++
		}
	}
	if count == 0 {
		return "", 0, nil
	}

	path := SnapshotPath(a.now())
	size := int64(buf.Len())
	if size > minPartSize {
		err = a.writer.PutMultipart(ctx, path, &buf, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, "application/x-ndjson")
	}
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: snapshot: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, domain.AuditSnapshotArchived, map[string]any{
			"path": path, "positions": count, "bytes": size,
		}); err != nil {
			a.logger.WarnContext(ctx, "audit snapshot failed", slog.String("error", err.Error()))
		}
	}
	return path, count, nil
}

// Run takes a snapshot every interval until ctx is cancelled. Failed
// snapshots are logged and retried on the next interval.
func (a *SnapshotArchiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "snapshot archiver started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "snapshot archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			path, n, err := a.Snapshot(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "snapshot failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "snapshot written",
					slog.String("path", path),
					slog.Int("positions", n),
				)
			}
		}
	}
}
