package transfer

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongrel/internal/relation"
	"mongrel/internal/schema"
	"mongrel/internal/storage"
	"mongrel/internal/storage/sqlite"
)

func TestRun_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "music.db")

	dest, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: path})
	require.NoError(t, err)

	g, err := relation.BuildGraph([]byte(tracksRelations))
	require.NoError(t, err)
	plan, err := schema.Build(g, []byte(tracksMapping), schema.Options{Dialect: sqlite.Dialect{}})
	require.NoError(t, err)

	// Two runs over the same documents: the second inserts nothing new.
	for i, wantInserted := range []int64{2, 0} {
		e := &Engine{Dest: dest, BatchSize: 1}
		stats, err := e.Run(ctx, plan, docs(t, tracksDocs...), "songs")
		require.NoError(t, err, "run %d", i)
		assert.Equal(t, wantInserted, stats.Inserted["tracks"], "run %d", i)
	}
	dest.Close()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var artists int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "artist"`).Scan(&artists))
	assert.Equal(t, 1, artists)

	rows, err := db.QueryContext(ctx, `SELECT "_id", "artist__id" FROM "tracks" ORDER BY "_id"`)
	require.NoError(t, err)
	defer rows.Close()

	var got [][2]any
	for rows.Next() {
		var id int64
		var artist string
		require.NoError(t, rows.Scan(&id, &artist))
		got = append(got, [2]any{id, artist})
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, [][2]any{{int64(1), "a1"}, {int64(2), "a1"}}, got)
}
