// Command posterctl runs the offline poster maintenance tasks: importing a
// legacy catalog export, migrating placeholders to the current format, and
// writing the built-in presenter template for designers to edit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"poster-pipeline/internal/config"
	"poster-pipeline/internal/observability"
	"poster-pipeline/internal/placeholder"
	"poster-pipeline/internal/platform/database"
	"poster-pipeline/internal/presenter"
	"poster-pipeline/internal/services"
)

const usage = `usage: posterctl <command> [arguments]

commands:
  import <file.jsonl>   load a legacy export as version 1 records
  migrate               rewrite version 1 placeholders to the current format
  template <out.png>    write the built-in presenter template
`

var errUsage = errors.New("invalid arguments")

func main() {
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		log.Fatalf("posterctl: %v", err)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "template":
		if len(rest) != 1 {
			return errUsage
		}
		return writeTemplate(rest[0])
	case "import":
		if len(rest) != 1 {
			return errUsage
		}
		return withContainer(ctx, func(c *services.Container, logger *observability.Logger) error {
			return importLegacy(ctx, c, logger, rest[0])
		})
	case "migrate":
		if len(rest) != 0 {
			return errUsage
		}
		return withContainer(ctx, func(c *services.Container, logger *observability.Logger) error {
			report, err := c.PosterService().MigratePlaceholders(ctx)
			if err != nil {
				return err
			}
			logger.Info(ctx).
				Int("scanned", report.Scanned).
				Int("recomputed", report.Recomputed).
				Int("converted", report.Converted).
				Int("failed", report.Failed).
				Int64("remaining", report.Remaining).
				Msg("Placeholder migration finished")
			if report.Remaining > 0 {
				return fmt.Errorf("%d records still use placeholder version %d", report.Remaining, placeholder.LegacyVersion)
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func writeTemplate(out string) error {
	data, err := presenter.EncodeTemplate()
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

func importLegacy(ctx context.Context, c *services.Container, logger *observability.Logger, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	report, err := c.PosterService().ImportLegacy(ctx, f)
	if err != nil {
		return err
	}
	logger.Info(ctx).
		Str("file", path).
		Int("read", report.Read).
		Int("invalid", report.Invalid).
		Int64("inserted", report.Inserted).
		Int64("skipped", report.Skipped).
		Msg("Legacy import finished")
	return nil
}

// withContainer wires the same services the server uses, without HTTP
func withContainer(ctx context.Context, fn func(*services.Container, *observability.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	obsCfg := observability.LoadConfig()
	obsCfg.LogLevel = cfg.Logging.Level
	obsCfg.LogFormat = cfg.Logging.Format
	obsCfg.LogOutput = cfg.Logging.Output
	logger := observability.NewLogger(obsCfg)

	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := database.RunMigrations(ctx, db); err != nil {
		return err
	}

	container, err := services.NewContainer(ctx, cfg, db, logger, nil)
	if err != nil {
		return err
	}

	runErr := fn(container, logger)
	if err := container.Close(context.WithoutCancel(ctx)); err != nil {
		logger.Error(ctx).Err(err).Msg("Failed to close services")
	}
	return runErr
}
