package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func migrationFiles(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestLoadMigrations_PairsAndSorts(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationFiles(map[string]string{
		"0010_more.up.sql":   "CREATE TABLE b (id INT);",
		"0010_more.down.sql": "DROP TABLE b;",
		"0002_init.up.sql":   "CREATE TABLE a (id INT);",
		"0002_init.down.sql": "DROP TABLE a;",
		"README.md":          "ignored",
	}))
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	require.Equal(t, int64(2), migrations[0].Version)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "DROP TABLE a;", migrations[0].sql(directionDown))
	require.Equal(t, "0010_more", migrations[1].String())
}

func TestLoadMigrations_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{name: "empty dir", files: map[string]string{"README.md": "x"}, wantErr: "no migration files"},
		{name: "missing down", files: map[string]string{"0001_init.up.sql": "SELECT 1;"}, wantErr: "both up and down"},
		{name: "bad name", files: map[string]string{"init.sql": "SELECT 1;"}, wantErr: "invalid migration file name"},
		{name: "blank body", files: map[string]string{"0001_init.up.sql": "  \n", "0001_init.down.sql": "SELECT 1;"}, wantErr: "is empty"},
		{name: "name clash", files: map[string]string{"0001_init.up.sql": "SELECT 1;", "0001_other.down.sql": "SELECT 1;"}, wantErr: "two names"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadMigrations(migrationFiles(tt.files))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestPlan(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	versions := func(ms []migration) []int64 {
		out := []int64{}
		for _, m := range ms {
			out = append(out, m.Version)
		}
		return out
	}

	tests := []struct {
		name    string
		applied appliedSet
		dir     migrateDirection
		steps   int
		want    []int64
	}{
		{"up from scratch", appliedSet{}, directionUp, 0, []int64{1, 2, 3}},
		{"up skips applied", appliedSet{1: ""}, directionUp, 0, []int64{2, 3}},
		{"up one step", appliedSet{}, directionUp, 1, []int64{1}},
		{"down newest first", appliedSet{1: "", 2: ""}, directionDown, 0, []int64{2, 1}},
		{"down one step", appliedSet{1: "", 2: "", 3: ""}, directionDown, 1, []int64{3}},
		{"down with nothing applied", appliedSet{}, directionDown, 1, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, versions(plan(all, tt.applied, tt.dir, tt.steps)))
		})
	}
}

func TestVerifyChecksums(t *testing.T) {
	t.Parallel()

	m := migration{Version: 1, Name: "init", Up: "CREATE TABLE a (id INT);", Down: "DROP TABLE a;"}
	all := []migration{m}

	require.NoError(t, verifyChecksums(all, appliedSet{}))
	require.NoError(t, verifyChecksums(all, appliedSet{1: m.checksum()}))
	require.NoError(t, verifyChecksums(all, appliedSet{1: ""}), "legacy rows have no checksum")
	require.ErrorIs(t, verifyChecksums(all, appliedSet{1: "deadbeef"}), ErrMigrationDrift)

	edited := m
	edited.Down = "DROP TABLE IF EXISTS a;"
	require.Equal(t, m.checksum(), edited.checksum(), "down script does not affect checksum")
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "init"}, {Version: 2, Name: "listing_indexes"}, {Version: 3, Name: "timeline_transitions"}}

	st := statusOf(all, appliedSet{1: "", 2: ""})
	require.Equal(t, SchemaStatus{Version: 2, Applied: 2, Pending: []string{"0003_timeline_transitions"}}, st)

	require.Equal(t, SchemaStatus{Pending: []string{"0001_init", "0002_listing_indexes", "0003_timeline_transitions"}}, statusOf(all, appliedSet{}))
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrations(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "timeline_transitions", migrations[2].Name)
}
