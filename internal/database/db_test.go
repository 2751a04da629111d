package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Health())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	db, err := database.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.InsertQueries(context.Background(), []database.QueryEntry{{Time: time.Now(), QName: "a"}}))
	require.NoError(t, db.Close())

	db, err = database.Open(path)
	require.NoError(t, err, "already migrated database opens cleanly")
	defer db.Close()
	n, err := db.CountQueries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	entries := []database.QueryEntry{
		{Time: base, Client: "192.0.2.1:5000", QName: "a.test", QType: "A", RCode: "NOERROR", Duration: 1500 * time.Microsecond},
		{Time: base.Add(time.Second), Client: "192.0.2.2:5000", QName: "b.test", QType: "AAAA", RCode: "NOERROR", Cached: true},
		{Time: base.Add(2 * time.Second), Client: "192.0.2.3:5000", QName: "c.test", QType: "MX", RCode: "SERVFAIL", Error: "upstream timeout"},
	}
	require.NoError(t, db.InsertQueries(ctx, entries))
	require.NoError(t, db.InsertQueries(ctx, nil))

	got, err := db.RecentQueries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c.test", got[0].QName, "newest first")
	assert.Equal(t, "upstream timeout", got[0].Error)
	assert.Equal(t, base.Add(2*time.Second), got[0].Time)
	assert.Equal(t, "b.test", got[1].QName)
	assert.True(t, got[1].Cached)

	all, err := db.RecentQueries(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1500*time.Microsecond, all[2].Duration)
	assert.False(t, all[2].Cached)
}

func TestPruneBefore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	var entries []database.QueryEntry
	for i := range 5 {
		entries = append(entries, database.QueryEntry{Time: base.Add(time.Duration(i) * time.Hour), QName: "x.test"})
	}
	require.NoError(t, db.InsertQueries(ctx, entries))

	n, err := db.PruneBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	count, err := db.CountQueries(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
