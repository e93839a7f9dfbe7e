package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mongrel/internal/document"
	"mongrel/internal/relation"
)

func mustObject(t *testing.T, js string) *document.Object {
	t.Helper()
	o, err := document.ParseObject([]byte(js))
	require.NoError(t, err)
	return o
}

func key(parts ...string) string { return relation.JoinPath(parts) }

func TestProject_KeepsOnlyDeclaredBranches(t *testing.T) {
	doc := mustObject(t, `{
		"_id": 1,
		"noise": {"x": 1},
		"artist": {"_id": "a1", "name": "X", "bio": "long"},
		"genres": [{"name": "rock", "score": 1}, {"name": "pop"}]
	}`)
	trie := newPathTrie(
		relation.SplitPath("_id"),
		relation.SplitPath("artist._id"),
		relation.SplitPath("genres.name"),
	)

	got := project(doc, trie).(*document.Object)
	assert.Equal(t, []string{"_id", "artist", "genres"}, got.Keys())

	artist, _ := got.Get("artist")
	assert.Equal(t, []string{"_id"}, artist.(*document.Object).Keys())

	genres, _ := got.Get("genres")
	require.Len(t, genres, 2)
	assert.Equal(t, []string{"name"}, genres.(document.List)[0].(*document.Object).Keys())
}

func TestProject_ScalarWhereObjectExpected(t *testing.T) {
	doc := mustObject(t, `{"artist": "a1"}`)
	got := project(doc, newPathTrie(relation.SplitPath("artist._id")))

	rows := flatten(got)
	require.Len(t, rows, 1)
	_, ok := rows[0][key("artist", "_id")]
	assert.False(t, ok)
}

func TestFlatten_CartesianOverLists(t *testing.T) {
	doc := mustObject(t, `{
		"_id": 7,
		"genres": [{"name": "rock"}, {"name": "pop"}],
		"tags": ["a", "b", "c"]
	}`)

	rows := flatten(doc)
	require.Len(t, rows, 6)
	for _, r := range rows {
		assert.Equal(t, int64(7), r["_id"])
	}

	seen := map[[2]any]bool{}
	for _, r := range rows {
		seen[[2]any{r[key("genres", "name")], r["tags"]}] = true
	}
	assert.Len(t, seen, 6)
}

func TestFlatten_EmptyListKeepsSiblings(t *testing.T) {
	doc := mustObject(t, `{"_id": 1, "genres": [], "artist": {"_id": "a1"}}`)

	rows := flatten(doc)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["_id"])
	assert.Equal(t, "a1", rows[0][key("artist", "_id")])
	_, ok := rows[0]["genres"]
	assert.False(t, ok)
}

func TestFlatten_RecoversEveryLeafByTranslatedPath(t *testing.T) {
	doc := mustObject(t, `{
		"album": {"id": "al1", "artists": [{"id": "x"}, {"id": "y"}], "released": null},
		"name": "song"
	}`)
	c := relation.NewColumn("artist_id", relation.SplitPath("album.artists.id"), "TEXT", relation.RoleBase)

	rows := flatten(doc)
	var got []any
	for _, r := range rows {
		got = append(got, r[c.TranslatedPath])
		assert.Equal(t, "al1", r[key("album", "id")])
		assert.Equal(t, "song", r["name"])
		v, ok := r[key("album", "released")]
		assert.True(t, ok)
		assert.Nil(t, v)
	}
	assert.ElementsMatch(t, []any{"x", "y"}, got)
}

func TestCross_DoesNotAliasRows(t *testing.T) {
	left := []row{{"a": 1}, {"a": 2}}
	right := []row{{"b": 1}, {"b": 2}}

	out := cross(left, right)
	require.Len(t, out, 4)
	out[0]["a"] = 99
	assert.Equal(t, 1, left[0]["a"])
}
