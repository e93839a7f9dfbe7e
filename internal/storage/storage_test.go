package storage

import (
	"context"
	"strings"
	"testing"

	"mongrel/internal/relation"
)

type fakeDialect struct{}

func (fakeDialect) Name() string { return "fake" }
func (fakeDialect) QuoteIdent(n string) string { return "<" + n + ">" }
func (d fakeDialect) TableName(t relation.Info) string { return d.QuoteIdent(t.String()) }
func (fakeDialect) CreateSchema(string) string { return "" }
func (d fakeDialect) CreateTable(t TableSpec) string { return "CREATE " + FormatBody(TableBody(d, t)) }
func (d fakeDialect) DropTable(t relation.Info) string { return "DROP " + d.TableName(t) }
func (d fakeDialect) ClearTable(t relation.Info) string { return "CLEAR " + d.TableName(t) }

type fakeDestination struct{ closed int }

func (f *fakeDestination) Dialect() Dialect { return fakeDialect{} }
func (f *fakeDestination) Exec(context.Context, string) error { return nil }
func (f *fakeDestination) Close() { f.closed++ }
func (f *fakeDestination) InsertRows(context.Context, relation.Info, []string, []string, [][]any) (int64, error) {
	return 0, nil
}

func TestRegisterAndNew(t *testing.T) {
	dest := &fakeDestination{}
	Register("fake-registry-test", fakeDialect{}, func(ctx context.Context, cfg Config) (Destination, error) {
		if cfg.DSN != "dsn" {
			t.Fatalf("expected DSN to be passed through, got %q", cfg.DSN)
		}
		return dest, nil
	})

	got, err := New(context.Background(), Config{Kind: "fake-registry-test", DSN: "dsn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got != dest {
		t.Fatalf("expected registered destination")
	}

	d, err := DialectFor("fake-registry-test")
	if err != nil || d.Name() != "fake" {
		t.Fatalf("DialectFor: %v %v", d, err)
	}

	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := DialectFor("nope"); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Destination, error) { return nil, nil }
	Register("fake-dup", fakeDialect{}, f)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register("fake-dup", fakeDialect{}, f)
}

func TestTableBody(t *testing.T) {
	t.Parallel()

	spec := TableSpec{
		Name: relation.Info{Schema: "m", Table: "tracks"},
		Columns: []ColumnSpec{
			{Name: "_id", Definition: "INTEGER"},
			{Name: "artist__id", Definition: "TEXT"},
		},
		PrimaryKey: []string{"_id"},
		ForeignKeys: []ForeignKeySpec{{
			Columns:    []string{"artist__id"},
			References: relation.Info{Schema: "m", Table: "artist"},
			RefColumns: []string{"_id"},
		}},
	}

	got := fakeDialect{}.CreateTable(spec)
	want := "CREATE (\n\t<_id> INTEGER,\n\t<artist__id> TEXT,\n\tPRIMARY KEY (<_id>),\n\tFOREIGN KEY (<artist__id>) REFERENCES <m.artist> (<_id>)\n)"
	if got != want {
		t.Fatalf("unexpected body:\n%s\nwant:\n%s", got, want)
	}
}

func TestDedupeRows_KeepsFirstPerKey(t *testing.T) {
	t.Parallel()

	rows := [][]any{
		{int64(1), "a", "first"},
		{int64(1), "a", "second"},
		{int64(1), "b", "third"},
		{int64(1), "a ", "trimmed duplicate"},
	}
	out, err := DedupeRows([]string{"id", "k", "v"}, []string{"id", "k"}, rows)
	if err != nil {
		t.Fatalf("DedupeRows: %v", err)
	}
	if len(out) != 2 || out[0][2] != "first" || out[1][2] != "third" {
		t.Fatalf("unexpected rows: %#v", out)
	}

	if _, err := DedupeRows([]string{"id"}, []string{"missing"}, rows); err == nil {
		t.Fatalf("expected error for unknown key column")
	}
}

func TestChunks(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 10)
	for i := range rows {
		rows[i] = []any{i, i}
	}
	chunks := Chunks(rows, 2, 6)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks of <=3 rows, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if len(c)*2 > 6 {
			t.Fatalf("chunk binds too many params: %d rows", len(c))
		}
		total += len(c)
	}
	if total != 10 {
		t.Fatalf("expected 10 rows total, got %d", total)
	}

	if got := Chunks(nil, 2, 6); got != nil {
		t.Fatalf("expected nil for no rows")
	}
	if got := Chunks(rows[:2], 100, 6); len(got) != 2 {
		t.Fatalf("expected one row per chunk when a row exceeds the limit, got %d", len(got))
	}
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	cases := map[string]any{
		"":      nil,
		"abc":   "  abc ",
		"42":    int64(42),
		"7":     7,
		"2.5":   2.5,
		"bytes": []byte(" bytes "),
	}
	for want, in := range cases {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%#v)=%q want %q", in, got, want)
		}
	}
	if !strings.HasPrefix(NormalizeKey(struct{ A int }{1}), "{") {
		t.Fatalf("expected fmt fallback")
	}
}
