package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-stock/migrations"
)

// execer runs a multi-statement script.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// applyMigrations runs every embedded script in order. The scripts are
// idempotent so re-running is safe.
func applyMigrations(ctx context.Context, conn execer, out io.Writer) error {
	scripts, err := migrations.Scripts()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	for _, script := range scripts {
		if _, err := conn.Exec(ctx, script.SQL); err != nil {
			return fmt.Errorf("apply %s: %w", script.Name, err)
		}
		fmt.Fprintf(out, "applied %s\n", script.Name)
	}
	return nil
}
