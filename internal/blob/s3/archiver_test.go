package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
)

type fakeWriter struct {
	puts map[string][]byte
	err  error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.puts == nil {
		w.puts = map[string][]byte{}
	}
	w.puts[path] = b
	return nil
}

func (w *fakeWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

type fakeAudit struct{ events []string }

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotPath(t *testing.T) {
	ts := time.Date(2024, 3, 7, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "snapshots/2024/03/07/positions-1709854200.jsonl", SnapshotPath(ts))
}

func TestSnapshotWritesAllPositions(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPositionStore(100)
	_, err := store.Upsert(ctx, 1, "BTC", 60000, 0.5, 5)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, 1, "ETH", 3000, 2, 10)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, 2, "BTC", 61000, 1, 3)
	require.NoError(t, err)

	w := &fakeWriter{}
	audit := &fakeAudit{}
	a := NewSnapshotArchiver(w, store, audit, testLogger())
	a.now = func() time.Time { return time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC) }

	path, n, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, SnapshotPath(a.now()), path)
	assert.Equal(t, []string{domain.AuditSnapshotArchived}, audit.events)

	var keys []string
	sc := bufio.NewScanner(bytes.NewReader(w.puts[path]))
	for sc.Scan() {
		var p domain.Position
		require.NoError(t, json.Unmarshal(sc.Bytes(), &p))
		keys = append(keys, p.Key().String())
		assert.NotEmpty(t, p.PriceHistory)
	}
	assert.ElementsMatch(t, []string{"1:BTC", "1:ETH", "2:BTC"}, keys)
}

func TestSnapshotEmptyStoreWritesNothing(t *testing.T) {
	w := &fakeWriter{}
	path, n, err := NewSnapshotArchiver(w, memory.NewPositionStore(10), nil, testLogger()).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, path)
	assert.Empty(t, w.puts)
}

func TestSnapshotUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewPositionStore(10)
	_, err := store.Upsert(ctx, 1, "BTC", 60000, 0.5, 5)
	require.NoError(t, err)

	w := &fakeWriter{err: errors.New("access denied")}
	_, _, err = NewSnapshotArchiver(w, store, nil, testLogger()).Snapshot(ctx)
	assert.ErrorContains(t, err, "access denied")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
