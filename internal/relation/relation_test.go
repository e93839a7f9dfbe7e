package relation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInfo(t *testing.T) {
	cases := map[string]Info{
		"tracks":            {Table: "tracks"},
		"music.tracks":      {Schema: "music", Table: "tracks"},
		"db.music.tracks":   {Schema: "music", Table: "tracks"},
		"  music.tracks   ": {Schema: "music", Table: "tracks"},
	}
	for in, want := range cases {
		got := ParseInfo(in)
		assert.Equal(t, want, got, in)
	}
	assert.Equal(t, "music.tracks", Info{Schema: "music", Table: "tracks"}.String())
	assert.Equal(t, "tracks", Info{Table: "tracks"}.String())
}

func TestKind_InverseIsTextual(t *testing.T) {
	assert.Equal(t, ManyToOne, OneToMany.Inverse())
	assert.Equal(t, OneToMany, ManyToOne.Inverse())
	assert.Equal(t, OneToOne, OneToOne.Inverse())
	assert.Equal(t, ManyToManyBack, ManyToMany.Inverse())
	assert.Equal(t, ManyToMany, ManyToManyBack.Inverse())

	_, err := ParseKind("n:n")
	require.Error(t, err)
}

func TestParseColumnSpec(t *testing.T) {
	name, def, err := ParseColumnSpec("  release_date  DATE NOT NULL ")
	require.NoError(t, err)
	assert.Equal(t, "release_date", name)
	assert.Equal(t, "DATE NOT NULL", def)

	name, def, err = ParseColumnSpec("name\tCHARACTER VARYING (1023)")
	require.NoError(t, err)
	assert.Equal(t, "name", name)
	assert.Equal(t, "CHARACTER VARYING (1023)", def)

	for _, bad := range []string{"", "name", "   name   "} {
		_, _, err := ParseColumnSpec(bad)
		require.Error(t, err, bad)
	}
}

func TestColumn_TranslatedPath(t *testing.T) {
	c := NewColumn("id", SplitPath("album.artists.id"), "TEXT", RoleBase)
	assert.Equal(t, []string{"album", "artists", "id"}, c.Path)
	assert.Equal(t, "album\x00artists\x00id", c.TranslatedPath)
}

func TestRelation_AddEdgeDeduplicates(t *testing.T) {
	r := New(Info{Table: "tracks"})
	assert.True(t, r.AddEdge(ManyToOne, Info{Table: "artist"}))
	assert.False(t, r.AddEdge(ManyToOne, Info{Table: "artist"}))
	assert.True(t, r.AddEdge(OneToMany, Info{Table: "plays"}))

	assert.Equal(t, []Info{{Table: "artist"}}, r.Targets(ManyToOne))
	assert.Equal(t, []Kind{ManyToOne, OneToMany}, r.Kinds())
	assert.Empty(t, r.Targets(ManyToMany))
}

func newPK(name, path, def string) Column {
	return NewColumn(name, SplitPath(path), def, RolePrimaryKey)
}

func TestPrepare_InheritsReferencedKeysOnce(t *testing.T) {
	g := NewGraph()
	artist := g.Ensure(Info{Schema: "music", Table: "artist"})
	require.NoError(t, artist.AddColumn(newPK("_id", "artist._id", "TEXT")))
	require.NoError(t, artist.AddColumn(NewColumn("name", SplitPath("artist.name"), "TEXT", RoleBase)))

	tracks := g.Ensure(Info{Schema: "music", Table: "tracks"})
	require.NoError(t, tracks.AddColumn(newPK("_id", "_id", "INTEGER")))
	tracks.AddEdge(ManyToOne, artist.Info)

	require.NoError(t, tracks.Prepare(g))
	require.NoError(t, tracks.Prepare(g))
	assert.True(t, tracks.Prepared())

	require.Len(t, tracks.Columns, 2)
	fk := tracks.Columns[1]
	assert.Equal(t, "artist__id", fk.Name)
	assert.Equal(t, []string{"artist", "_id"}, fk.Path)
	assert.Equal(t, "TEXT", fk.Definition)
	assert.Equal(t, RoleForeignKey, fk.Role)
	assert.Equal(t, artist.Info, fk.References)

	// Only the declared key stays in the primary key.
	assert.Equal(t, []string{"_id"}, names(tracks.PrimaryKey()))
}

func TestPrepare_UsesAliasTableForNameAndReference(t *testing.T) {
	g := NewGraph()
	a := g.Ensure(Info{Schema: "s", Table: "album_artist"})
	a.Alias = Info{Schema: "s", Table: "artist"}
	require.NoError(t, a.AddColumn(newPK("id", "album.artists.id", "TEXT")))

	album := g.Ensure(Info{Schema: "s", Table: "album"})
	album.AddEdge(ManyToOne, a.Info)
	require.NoError(t, album.Prepare(g))

	c, ok := album.Column("artist_id")
	require.True(t, ok)
	assert.Equal(t, Info{Schema: "s", Table: "artist"}, c.References)
}

func TestPrepare_Errors(t *testing.T) {
	g := NewGraph()
	r := g.Ensure(Info{Table: "a"})
	r.AddEdge(ManyToOne, Info{Table: "missing"})
	require.Error(t, r.Prepare(g))

	g = NewGraph()
	keyless := g.Ensure(Info{Table: "k"})
	r = g.Ensure(Info{Table: "a"})
	r.AddEdge(ManyToOne, keyless.Info)
	err := r.Prepare(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no primary key")
}

func TestNewJunction_CompositeKeyFromBothSides(t *testing.T) {
	g := NewGraph()
	tracks := g.Ensure(Info{Schema: "m", Table: "tracks"})
	require.NoError(t, tracks.AddColumn(newPK("_id", "_id", "INTEGER")))
	genres := g.Ensure(Info{Schema: "x", Table: "genres"})
	require.NoError(t, genres.AddColumn(newPK("name", "genres.name", "TEXT")))

	j := NewJunction(tracks, genres)
	g.Add(j)
	require.NoError(t, j.Prepare(g))

	assert.True(t, j.IsJunction())
	assert.Equal(t, Info{Schema: "m", Table: "tracks2genres"}, j.Info)
	assert.Equal(t, []string{"tracks__id", "genres_name"}, names(j.PrimaryKey()))
	assert.Len(t, j.Columns, 2)
}

func TestGraph_AliasSiblings(t *testing.T) {
	g := NewGraph()
	a := g.Ensure(Info{Table: "track_artist"})
	a.Alias = Info{Table: "artist"}
	b := g.Ensure(Info{Table: "album_artist"})
	b.Alias = Info{Table: "artist"}
	c := g.Ensure(Info{Table: "artist"})
	g.Ensure(Info{Table: "other"})

	sib := g.AliasSiblings(b)
	assert.Equal(t, []*Relation{a, b, c}, sib)

	again, inserted := g.Add(New(Info{Table: "artist"}))
	assert.False(t, inserted)
	assert.Same(t, c, again)
	assert.Equal(t, 4, g.Len())
}

func TestBuildGraph_EdgesFromNeighbors(t *testing.T) {
	cfg := []byte(`{
		"music.tracks": {
			"n:1": {"music.album": {"n:1": {"music.label": {}}}},
			"n:m": {"music.genres": {}}
		},
		"music.plays": {"n:1": {"music.tracks": {}}}
	}`)

	g, err := BuildGraph(cfg)
	require.NoError(t, err)

	var order []string
	for _, r := range g.Relations() {
		order = append(order, r.Info.String())
	}
	assert.Equal(t, []string{"music.tracks", "music.album", "music.label", "music.genres", "music.plays"}, order)

	tracks, _ := g.Get(ParseInfo("music.tracks"))
	assert.Equal(t, []Info{ParseInfo("music.album")}, tracks.Targets(ManyToOne))
	assert.Equal(t, []Info{ParseInfo("music.genres")}, tracks.Targets(ManyToMany))
	assert.Equal(t, []Info{ParseInfo("music.plays")}, tracks.Targets(OneToMany))

	album, _ := g.Get(ParseInfo("music.album"))
	assert.Equal(t, []Info{ParseInfo("music.tracks")}, album.Targets(OneToMany))
	assert.Equal(t, []Info{ParseInfo("music.label")}, album.Targets(ManyToOne))

	genres, _ := g.Get(ParseInfo("music.genres"))
	assert.Equal(t, []Info{ParseInfo("music.tracks")}, genres.Targets(ManyToManyBack))
	assert.Empty(t, genres.Targets(ManyToMany))
}

func TestBuildGraph_Errors(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"root array":       `[]`,
		"dangling kind":    `{"a": {"n:1": {}}}`,
		"bad kind":         `{"a": {"x:y": {"b": {}}}}`,
		"kind where table": `{"n:1": {}}`,
		"scalar value":     `{"a": 3}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := BuildGraph([]byte(in))
			require.Error(t, err)
			var ce *ConfigurationError
			assert.True(t, errors.As(err, &ce), "got %T", err)
		})
	}
}

func names(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}
