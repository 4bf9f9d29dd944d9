// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/config"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/db"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/logger"
)

var defaultSeedFiles = []string{
	"seed/send_records.sql",
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "seeder: %v\n", err)
		os.Exit(1)
	}
}

// run creates the send history schema and executes each seed file in order.
// With --schema-only no seed files are read.
func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("seeder", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	schemaOnly := fs.Bool("schema-only", false, "create the schema without seeding")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(out, cfg.LogLevel, cfg.LogFormat)

	store, err := db.Open(ctx, cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	log.Info("schema_ready", "driver", store.Driver)
	if *schemaOnly {
		return nil
	}

	seedFiles := fs.Args()
	if len(seedFiles) == 0 {
		seedFiles = defaultSeedFiles
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}

		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := store.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute %s: %w", file, err)
			}
		}
		log.Info("seeded", "file", file)
	}

	log.Info("seeding_completed", "files", len(seedFiles))
	return nil
}
