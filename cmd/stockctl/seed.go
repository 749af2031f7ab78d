package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
)

type seedProduct struct {
	sku  string
	name string
}

type seedWarehouse struct {
	name    string
	primary bool
	active  bool
}

var (
	demoProducts = []seedProduct{
		{"MED-PCM-500", "Paracetamol 500mg"},
		{"MED-AMX-250", "Amoxicillin 250mg"},
		{"MED-ORS-200", "Oral Rehydration Salts"},
	}
	demoWarehouses = []seedWarehouse{
		{"Gudang Utama Jakarta", true, true},
		{"Gudang Cabang Surabaya", false, true},
	}
)

// seedCatalog inserts demo products and warehouses; existing rows are kept.
func seedCatalog(ctx context.Context, tx pgx.Tx, out io.Writer) error {
	for _, p := range demoProducts {
		if _, err := tx.Exec(ctx, `INSERT INTO products (sku, name) VALUES ($1, $2) ON CONFLICT (sku) DO NOTHING`, p.sku, p.name); err != nil {
			return fmt.Errorf("seed product %s: %w", p.sku, err)
		}
	}
	for _, w := range demoWarehouses {
		_, err := tx.Exec(ctx, `INSERT INTO warehouses (name, is_active, is_primary)
SELECT $1, $2, $3 WHERE NOT EXISTS (SELECT 1 FROM warehouses WHERE name = $1)`, w.name, w.active, w.primary)
		if err != nil {
			return fmt.Errorf("seed warehouse %s: %w", w.name, err)
		}
	}
	fmt.Fprintf(out, "seeded %d products, %d warehouses\n", len(demoProducts), len(demoWarehouses))
	return nil
}
