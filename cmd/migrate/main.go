// Command migrate applies or rolls back the ledger schema outside the API
// process, e.g. from a deploy job.
//
//	migrate up            apply all pending migrations
//	migrate down [N]      roll back N migrations (default 1)
//	migrate goto V        migrate up or down to version V
//	migrate force V       mark version V as applied and clear the dirty flag
//	migrate version       print the current version
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"coopledger/internal/config"
	"coopledger/internal/database"
	"coopledger/internal/logger"
)

const usage = "usage: migrate <up|down [N]|goto V|force V|version>"

// command is a parsed invocation. n is the step count or target version.
type command struct {
	name string
	n    int
}

func main() {
	logger.Init(os.Getenv("ENV"), logger.WithLevel(os.Getenv("LOG_LEVEL")))
	defer logger.Sync()

	cmd, err := parseArgs(os.Args[1:])
	if err != nil {
		logger.Get().Fatal(err)
	}
	if err := run(cmd); err != nil {
		logger.Get().Fatalf("migrate %s: %v", cmd.name, err)
	}
}

func parseArgs(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New(usage)
	}
	cmd := command{name: args[0]}
	switch cmd.name {
	case "up", "version":
		if len(args) > 1 {
			return command{}, errors.New(usage)
		}
	case "down":
		cmd.n = 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return command{}, fmt.Errorf("invalid step count %q", args[1])
			}
			cmd.n = n
		}
	case "goto", "force":
		if len(args) != 2 {
			return command{}, errors.New(usage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return command{}, fmt.Errorf("invalid version %q", args[1])
		}
		cmd.n = v
	default:
		return command{}, fmt.Errorf("unknown command %q; %s", cmd.name, usage)
	}
	return cmd, nil
}

func run(cmd command) error {
	log := logger.Named("migrate")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	m, err := database.NewMigrator(database.NewConfig(cfg))
	if err != nil {
		return err
	}
	defer closeMigrator(log, m)

	switch cmd.name {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-cmd.n)
	case "goto":
		err = m.Migrate(uint(cmd.n))
	case "force":
		err = m.Force(cmd.n)
	case "version":
		return printVersion(log, m)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return printVersion(log, m)
}

func printVersion(log *zap.SugaredLogger, m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		log.Info("no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}
	log.Infow("schema version", "version", version, "dirty", dirty)
	return nil
}

func closeMigrator(log *zap.SugaredLogger, m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Warnw("closing migration source", "error", srcErr)
	}
	if dbErr != nil {
		log.Warnw("closing migration database", "error", dbErr)
	}
}
