package postgres

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrMigrationDrift: файл уже применённой миграции изменён после применения.
var ErrMigrationDrift = errors.New("applied migration was modified")

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"

	// Ключ advisory lock: одна реплика мигрирует, остальные ждут.
	migrationLockKey = int64(0x5f0e_f407)

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var migrationFileName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

type migrateDirection string

const (
	directionUp   migrateDirection = "up"
	directionDown migrateDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) sql(dir migrateDirection) string {
	if dir == directionDown {
		return m.Down
	}
	return m.Up
}

// checksum считается только по up-скрипту: его результат живёт в схеме.
func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.Up))
	return hex.EncodeToString(sum[:])
}

func (m migration) String() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// SchemaStatus состояние схемы относительно встроенных миграций.
type SchemaStatus struct {
	Version int64
	Applied int
	Pending []string
}

// appliedSet версия -> checksum из schema_migrations.
type appliedSet map[int64]string

// MigrateUp применяет ещё не применённые миграции; steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, directionUp, steps)
}

// MigrateDown откатывает последние steps миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, directionDown, max(steps, 1))
}

func (s *Store) MigrationStatus(ctx context.Context) (SchemaStatus, error) {
	if s == nil || s.db == nil {
		return SchemaStatus{}, errStoreNotInitialized
	}
	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return SchemaStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := ensureMigrationsTable(queryCtx, s.db); err != nil {
		return SchemaStatus{}, err
	}
	applied, err := readApplied(queryCtx, s.db)
	if err != nil {
		return SchemaStatus{}, err
	}
	return statusOf(all, applied), nil
}

func statusOf(all []migration, applied appliedSet) SchemaStatus {
	var st SchemaStatus
	for _, m := range all {
		if _, ok := applied[m.Version]; ok {
			st.Applied++
			st.Version = max(st.Version, m.Version)
			continue
		}
		st.Pending = append(st.Pending, m.String())
	}
	return st
}

func (s *Store) migrate(ctx context.Context, dir migrateDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if dir != directionUp && dir != directionDown {
		return fmt.Errorf("unsupported migration direction %q", dir)
	}

	all, err := loadMigrations(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if err := ensureMigrationsTable(ctx, conn); err != nil {
		return err
	}
	applied, err := readApplied(ctx, conn)
	if err != nil {
		return err
	}
	if dir == directionUp {
		if err := verifyChecksums(all, applied); err != nil {
			return err
		}
	}

	for _, m := range plan(all, applied, dir, steps) {
		if err := apply(ctx, conn, m, dir); err != nil {
			return err
		}
	}
	return nil
}

// plan: up идёт по возрастанию версий среди неприменённых, down по убыванию среди применённых.
func plan(all []migration, applied appliedSet, dir migrateDirection, steps int) []migration {
	var out []migration
	for i := range all {
		m := all[i]
		if dir == directionDown {
			m = all[len(all)-1-i]
		}
		if _, done := applied[m.Version]; done == (dir == directionDown) {
			out = append(out, m)
		}
	}
	if steps > 0 && len(out) > steps {
		out = out[:steps]
	}
	return out
}

// verifyChecksums пропускает записи без checksum: их оставила старая версия таблицы.
func verifyChecksums(all []migration, applied appliedSet) error {
	for _, m := range all {
		recorded, ok := applied[m.Version]
		if ok && recorded != "" && recorded != m.checksum() {
			return fmt.Errorf("%w: %s", ErrMigrationDrift, m)
		}
	}
	return nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func ensureMigrationsTable(ctx context.Context, db execQuerier) error {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	if _, err := db.ExecContext(ctx, `ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("ensure schema_migrations.checksum: %w", err)
	}
	return nil
}

func readApplied(ctx context.Context, db execQuerier) (appliedSet, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(appliedSet)
	for rows.Next() {
		var (
			version  int64
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return applied, nil
}

// apply выполняет скрипт и запись в schema_migrations одной транзакцией.
func apply(ctx context.Context, conn *sql.Conn, m migration, dir migrateDirection) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", dir, m, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.sql(dir)); err != nil {
		return fmt.Errorf("run %s %s: %w", dir, m, err)
	}

	if dir == directionUp {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
			m.Version, m.Name, m.checksum())
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s %s: %w", dir, m, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", dir, m, err)
	}
	return nil
}

// loadMigrations собирает пары up/down из migrationsDir и сортирует их по версии.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := addMigrationFile(fsys, byVersion, entry.Name()); err != nil {
			return nil, err
		}
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

func addMigrationFile(fsys fs.FS, byVersion map[int64]*migration, file string) error {
	parts := migrationFileName.FindStringSubmatch(file)
	if parts == nil {
		return fmt.Errorf("invalid migration file name %q", file)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("migration version in %q: %w", file, err)
	}
	name, dir := parts[2], migrateDirection(parts[3])

	raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return fmt.Errorf("migration file %s is empty", file)
	}

	m, ok := byVersion[version]
	switch {
	case !ok:
		m = &migration{Version: version, Name: name}
		byVersion[version] = m
	case m.Name != name:
		return fmt.Errorf("version %d has two names: %s and %s", version, m.Name, name)
	}

	target := &m.Up
	if dir == directionDown {
		target = &m.Down
	}
	if *target != "" {
		return fmt.Errorf("duplicate %s file for version %d", dir, version)
	}
	*target = body
	return nil
}
