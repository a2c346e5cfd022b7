package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/autobidder/internal/db"
	"github.com/noah-isme/autobidder/internal/obs"
)

const usage = `usage: migrate [-database URL] <command> [arg]

commands:
  up           apply all pending migrations
  down [N]     roll back N migrations (default 1)
  goto V       migrate to version V
  force V      set the version without running migrations
  version      print the current version`

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	databaseURL := flag.String("database", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	if *databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := db.NewMigrator(*databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("init migrator")
	}
	defer m.Close()

	if err := run(m, flag.Arg(0), flag.Arg(1), logger); err != nil {
		logger.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("migration failed")
	}
}

func run(m *migrate.Migrate, cmd, arg string, logger zerolog.Logger) error {
	var err error
	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		n := 1
		if arg != "" {
			if n, err = strconv.Atoi(arg); err != nil || n <= 0 {
				return fmt.Errorf("invalid step count %q", arg)
			}
		}
		err = m.Steps(-n)
	case "goto", "force":
		v, convErr := strconv.ParseUint(arg, 10, 32)
		if convErr != nil {
			return fmt.Errorf("invalid version %q", arg)
		}
		if cmd == "goto" {
			err = m.Migrate(uint(v))
		} else {
			err = m.Force(int(v))
		}
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info().Msg("no change")
		err = nil
	}
	if err != nil {
		return err
	}

	version, dirty, verr := m.Version()
	switch {
	case errors.Is(verr, migrate.ErrNilVersion):
		logger.Info().Msg("no migrations applied")
	case verr != nil:
		return verr
	default:
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	}
	return nil
}
