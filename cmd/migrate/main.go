// migrate применяет встроенные SQL-миграции витрины к PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	dsnEnv  = "STOREFRONT_POSTGRES__DSN"
	timeout = 30 * time.Second
)

type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.SchemaStatus, error)
}

var _ migrator = (*postgres.Store)(nil)

type cliArgs struct {
	direction string
	steps     int
	dsn       string
}

func main() {
	args, err := parseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Миграциям хватает одного соединения под advisory lock и одного запасного.
	store, err := postgres.Open(ctx, args.dsn, postgres.WithPoolSize(2, 1))
	if err != nil {
		fail("open postgres: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, args.direction, args.steps, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func parseArgs(argv []string, getenv func(string) string) (cliArgs, error) {
	var args cliArgs

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&args.direction, "direction", "up", "up|down|status")
	fs.IntVar(&args.steps, "steps", 0, "migrations to apply (0 = all) or roll back (0 = one)")
	fs.StringVar(&args.dsn, "dsn", "", "PostgreSQL DSN (default $"+dsnEnv+")")
	if err := fs.Parse(argv); err != nil {
		return cliArgs{}, err
	}

	args.direction = strings.ToLower(strings.TrimSpace(args.direction))
	args.dsn = strings.TrimSpace(args.dsn)
	if args.dsn == "" {
		args.dsn = strings.TrimSpace(getenv(dsnEnv))
	}
	if args.dsn == "" {
		return cliArgs{}, fmt.Errorf("-dsn or %s is required", dsnEnv)
	}
	if args.steps < 0 {
		return cliArgs{}, errors.New("-steps must be >= 0")
	}
	return args, nil
}

func run(ctx context.Context, m migrator, direction string, steps int, out io.Writer) error {
	var err error
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		err = m.MigrateUp(ctx, steps)
	case "down":
		err = m.MigrateDown(ctx, max(steps, 1))
	case "status":
	default:
		return fmt.Errorf("unsupported direction %q (use up|down|status)", direction)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	status, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	printStatus(out, status)
	return nil
}

func printStatus(out io.Writer, st postgres.SchemaStatus) {
	_, _ = fmt.Fprintf(out, "schema version %d, applied %d, pending %d\n", st.Version, st.Applied, len(st.Pending))
	for _, name := range st.Pending {
		_, _ = fmt.Fprintf(out, "  pending %s\n", name)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
