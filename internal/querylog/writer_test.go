package querylog_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/jroosing/hydraproxy/internal/querylog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	rows     []database.QueryEntry
	batches  int
	insertFn func() error
	prunedAt time.Time
}

func (m *memStore) InsertQueries(_ context.Context, entries []database.QueryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertFn != nil {
		if err := m.insertFn(); err != nil {
			return err
		}
	}
	m.rows = append(m.rows, entries...)
	m.batches++
	return nil
}

func (m *memStore) PruneBefore(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunedAt = t
	kept := m.rows[:0]
	var n int64
	for _, r := range m.rows {
		if r.Time.Before(t) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestWriter_RecordDropsWhenFull(t *testing.T) {
	w, err := querylog.New(&memStore{}, querylog.Options{Buffer: 2})
	require.NoError(t, err)

	assert.True(t, w.Record(database.QueryEntry{QName: "a"}))
	assert.True(t, w.Record(database.QueryEntry{QName: "b"}))
	assert.False(t, w.Record(database.QueryEntry{QName: "c"}), "never blocks")
	assert.Equal(t, uint64(1), w.Stats().Dropped)
}

func TestWriter_FlushesOnShutdown(t *testing.T) {
	store := &memStore{}
	w, err := querylog.New(store, querylog.Options{Buffer: 16, BatchSize: 100, FlushInterval: time.Hour})
	require.NoError(t, err)

	for range 5 {
		require.True(t, w.Record(database.QueryEntry{QName: "x", Time: time.Now()}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not stop")
	}
	assert.Equal(t, 5, store.len())
	assert.Equal(t, uint64(5), w.Stats().Written)
}

func TestWriter_BatchesBySize(t *testing.T) {
	store := &memStore{}
	w, err := querylog.New(store, querylog.Options{Buffer: 64, BatchSize: 4, FlushInterval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	for range 8 {
		w.Record(database.QueryEntry{QName: "x"})
	}
	require.Eventually(t, func() bool { return store.len() == 8 }, 5*time.Second, 5*time.Millisecond)
}

func TestWriter_RunOnce(t *testing.T) {
	w, err := querylog.New(&memStore{}, querylog.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.ErrorIs(t, w.Run(ctx), querylog.ErrAlreadyRunning)
}

func TestWriter_InsertFailureIsCounted(t *testing.T) {
	store := &memStore{insertFn: func() error { return errors.New("disk full") }}
	w, err := querylog.New(store, querylog.Options{FlushInterval: time.Hour})
	require.NoError(t, err)
	w.Record(database.QueryEntry{QName: "x"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.Equal(t, uint64(1), w.Stats().Failed)
	assert.Zero(t, w.Stats().Written)
}

func TestWriter_Prune(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{rows: []database.QueryEntry{
		{QName: "old", Time: now.Add(-3 * time.Hour)},
		{QName: "new", Time: now.Add(-time.Minute)},
	}}
	w, err := querylog.New(store, querylog.Options{Retention: time.Hour, Now: func() time.Time { return now }})
	require.NoError(t, err)

	n, err := w.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(-time.Hour), store.prunedAt)
	assert.Equal(t, uint64(1), w.Stats().Pruned)
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := querylog.New(&memStore{}, querylog.Options{PruneSchedule: "every tuesday"})
	require.Error(t, err)
}

func TestWriter_WithSQLite(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "ql.db"))
	require.NoError(t, err)
	defer db.Close()

	w, err := querylog.New(db, querylog.Options{FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	w.Record(database.QueryEntry{Time: time.Now(), Client: "127.0.0.1:1", QName: "example.com", QType: "A", RCode: "NOERROR"})
	require.Eventually(t, func() bool {
		n, err := db.CountQueries(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
