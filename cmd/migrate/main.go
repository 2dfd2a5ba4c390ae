// Command migrate applies the auth schema in migrations/ using the same
// DB_* environment as the server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/welldanyogia/umx-auth/backend/internal/config"
	"github.com/welldanyogia/umx-auth/backend/internal/logger"
)

const migrationsTable = "schema_migrations"

func main() {
	log := logger.New(logger.DefaultConfig())

	path := flag.String("path", envOr("MIGRATIONS_PATH", "migrations"), "Path to migrations directory")
	timeout := flag.Duration("timeout", 5*time.Minute, "Lock and connect timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	if err := run(log, *path, *timeout, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Error("Migration failed", slog.String("command", flag.Arg(0)), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [options] <command> [args]

Commands:
  up [N]     Apply all pending migrations, or the next N
  down N     Roll back the last N migrations
  goto V     Migrate up or down to version V
  force V    Record version V without running anything (clears a dirty state)
  version    Print the applied version
  status     List migrations and mark the applied ones

The database is read from DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME
and DB_SSLMODE.

Options:
`, os.Args[0])
	flag.PrintDefaults()
}

func run(log *slog.Logger, path string, timeout time.Duration, cmd string, args []string) error {
	files, err := loadMigrations(path)
	if err != nil {
		return err
	}

	m, err := open(config.Load().Database.DSN(), path, timeout)
	if err != nil {
		return err
	}
	defer m.Close()

	before, dirty, err := currentVersion(m)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		n, err := optionalInt(args)
		if err != nil {
			return err
		}
		if n > 0 {
			err = m.Steps(n)
		} else {
			err = m.Up()
		}
		return report(log, m, before, err)
	case "down":
		n, err := optionalInt(args)
		if err != nil {
			return err
		}
		if n <= 0 {
			return errors.New("down requires a positive number of steps")
		}
		return report(log, m, before, m.Steps(-n))
	case "goto":
		v, err := requiredInt(args, "goto")
		if err != nil {
			return err
		}
		return report(log, m, before, m.Migrate(uint(v)))
	case "force":
		v, err := requiredInt(args, "force")
		if err != nil {
			return err
		}
		if err := m.Force(v); err != nil {
			return fmt.Errorf("force failed: %w", err)
		}
		log.Warn("Version forced", slog.Int("version", v))
		return nil
	case "version":
		log.Info("Current migration version", slog.Uint64("version", uint64(before)), slog.Bool("dirty", dirty))
		return nil
	case "status":
		for _, f := range files {
			state := "pending"
			if f.Version <= before {
				state = "applied"
			}
			fmt.Printf("%06d  %-8s %s\n", f.Version, state, f.Name)
		}
		if dirty {
			fmt.Printf("version %d is dirty; fix the schema and run force\n", before)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// report logs the version transition of an up/down/goto run
func report(log *slog.Logger, m *migrate.Migrate, before uint, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("Schema already up to date", slog.Uint64("version", uint64(before)))
		return nil
	}
	if err != nil {
		return err
	}
	after, _, verr := currentVersion(m)
	if verr != nil {
		return verr
	}
	log.Info("Migration applied", slog.Uint64("from", uint64(before)), slog.Uint64("to", uint64(after)))
	return nil
}

func currentVersion(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read version: %w", err)
	}
	return v, dirty, nil
}

func open(dsn, path string, timeout time.Duration) (*migrate.Migrate, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = timeout
	return m, nil
}

// migrationFile is one version with both directions present
type migrationFile struct {
	Version uint
	Name    string
}

var migrationName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

// loadMigrations lists the versions in dir. Every version needs an up and a
// down file and versions must run 1..N without gaps.
func loadMigrations(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	type pair struct {
		name     string
		up, down bool
	}
	found := map[uint]*pair{}
	for _, e := range entries {
		match := migrationName.FindStringSubmatch(e.Name())
		if e.IsDir() || match == nil {
			continue
		}
		v, _ := strconv.ParseUint(match[1], 10, 32)
		p := found[uint(v)]
		if p == nil {
			p = &pair{name: match[2]}
			found[uint(v)] = p
		}
		if p.name != match[2] {
			return nil, fmt.Errorf("version %d has two names: %s and %s", v, p.name, match[2])
		}
		if match[3] == "up" {
			p.up = true
		} else {
			p.down = true
		}
	}

	files := make([]migrationFile, 0, len(found))
	for v, p := range found {
		if !p.up || !p.down {
			return nil, fmt.Errorf("version %d (%s) is missing its up or down file", v, p.name)
		}
		files = append(files, migrationFile{Version: v, Name: p.name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	for i, f := range files {
		if f.Version != uint(i+1) {
			return nil, fmt.Errorf("migration versions have a gap before %d", f.Version)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", dir)
	}
	return files, nil
}

func optionalInt(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[0])
	}
	return n, nil
}

func requiredInt(args []string, cmd string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s requires a version", cmd)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return n, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
