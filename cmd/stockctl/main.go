// Command stockctl applies the schema and manages background jobs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-stock/internal/app"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
)

const usage = `usage: stockctl <command>

commands:
  migrate                      apply the embedded schema
  seed                         insert demo products and warehouses
  jobs trigger <job> [-horizon N]
                               enqueue inventory:reorder_scan or idempotency:cleanup
  jobs stats                   print default queue counters
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Default().Error("stockctl", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	switch args[0] {
	case "migrate":
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 1})
		if err != nil {
			return err
		}
		defer pool.Close()
		return applyMigrations(ctx, pool, out)
	case "seed":
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 1})
		if err != nil {
			return err
		}
		defer pool.Close()
		return db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return seedCatalog(ctx, tx, out)
		})
	case "jobs":
		client := asynq.NewClient(cfg.AsynqRedis())
		defer client.Close()
		inspector := asynq.NewInspector(cfg.AsynqRedis())
		defer inspector.Close()
		return runJobs(ctx, &jobsCLI{client: client, inspector: inspector}, args[1:], out)
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runJobs(ctx context.Context, cli *jobsCLI, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("jobs: subcommand required")
	}
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		fs.SetOutput(out)
		horizon := fs.Int("horizon", 0, "expiry horizon in days for the reorder scan")
		if len(args) < 2 {
			return fmt.Errorf("jobs trigger: job name required")
		}
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		info, err := cli.trigger(ctx, args[1], *horizon)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := cli.stats()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	default:
		return fmt.Errorf("jobs: unknown subcommand %q", args[0])
	}
}
