package main

import (
	"customer-onboarding/internal/config"
	"customer-onboarding/internal/infrastructure/database/migration"
	"customer-onboarding/internal/infrastructure/logging"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

func main() {
	var migrationsPath string
	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: database.migrationsPath)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.Logger)

	if migrationsPath == "" {
		migrationsPath = cfg.Database.MigrationsPath
	}
	absPath, err := filepath.Abs(migrationsPath)
	if err != nil {
		logger.Error("Failed to resolve migrations path", slog.Any("error", err))
		os.Exit(1)
	}

	m, err := migration.New(cfg.Database.URL, absPath, logger)
	if err != nil {
		logger.Error("Failed to create migrator", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close migrator", slog.Any("error", err))
		}
	}()

	if err := run(m, args); err != nil {
		logger.Error("Migration command failed", slog.String("command", args[0]), slog.Any("error", err))
		os.Exit(1)
	}
}

func run(m *migration.Migrator, args []string) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "steps":
		if len(args) < 2 {
			return fmt.Errorf("steps requires a count")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q: %w", args[1], err)
		}
		return m.Steps(n)
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("force requires a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return m.Force(v)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage() {
	fmt.Println(`Usage: migrate [-path dir] <command> [args]

Commands:
  up             apply all pending migrations
  down           roll back all migrations
  steps <n>      apply n migrations (negative rolls back)
  force <v>      set version without running migrations
  version        print current version`)
}
