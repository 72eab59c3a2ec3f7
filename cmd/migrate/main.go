package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/clinic-ops-platform/internal/config"
	appmigrations "github.com/wolfman30/clinic-ops-platform/migrations"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
)

const usage = `usage: migrate [up | down | steps <n> | version | force <version>]`

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	m, closeFn, err := newMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := run(m, os.Args[1:], logger); err != nil {
		logger.Error("migration failed", "error", err)
		closeFn()
		os.Exit(1)
	}
}

func newMigrator(databaseURL string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, func() { _, _ = m.Close() }, nil
}

// migrator is the subset of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func run(m migrator, args []string, logger *logging.Logger) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	var err error
	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps", "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			return fmt.Errorf("invalid %s argument %q: %w", cmd, args[1], convErr)
		}
		if cmd == "steps" {
			err = m.Steps(n)
		} else {
			err = m.Force(n)
		}
	case "version":
	default:
		return errors.New(usage)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("read version: %w", verr)
	}
	logger.Info("migrations complete", "command", cmd, "version", version, "dirty", dirty, "no_change", errors.Is(err, migrate.ErrNoChange))
	return nil
}
