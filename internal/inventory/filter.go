package inventory

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder accumulates parameterised predicates. Values never reach the
// SQL text; only $n placeholders do.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (b *whereBuilder) add(expr string, value any) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf(expr, len(b.args)))
}

func (b *whereBuilder) raw(expr string) {
	b.clauses = append(b.clauses, expr)
}

func (b *whereBuilder) eqID(column string, id int64) {
	if id > 0 {
		b.add(column+" = $%d", id)
	}
}

func (b *whereBuilder) since(column string, t time.Time) {
	if !t.IsZero() {
		b.add(column+" >= $%d", t)
	}
}

func (b *whereBuilder) until(column string, t time.Time) {
	if !t.IsZero() {
		b.add(column+" <= $%d", t)
	}
}

// placeholder appends value and returns its $n marker for use outside WHERE.
func (b *whereBuilder) placeholder(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

func stockWhere(f StockFilter, productCol, warehouseCol string) whereBuilder {
	var b whereBuilder
	b.eqID(productCol, f.ProductID)
	b.eqID(warehouseCol, f.WarehouseID)
	return b
}

func lotWhere(f LotFilter) whereBuilder {
	b := stockWhere(StockFilter{ProductID: f.ProductID, WarehouseID: f.WarehouseID}, "product_id", "warehouse_id")
	if f.ActiveOnly {
		b.raw("status = 'active'")
	}
	return b
}

func ledgerWhere(f LedgerFilter) whereBuilder {
	b := stockWhere(StockFilter{ProductID: f.ProductID, WarehouseID: f.WarehouseID}, "product_id", "warehouse_id")
	b.since("txn_date", f.From)
	b.until("txn_date", f.To)
	return b
}

// normalizeLedgerFilter applies the page size defaults and orders the range.
func normalizeLedgerFilter(f LedgerFilter) LedgerFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLedgerLimit
	case f.Limit > MaxLedgerLimit:
		f.Limit = MaxLedgerLimit
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		f.From, f.To = f.To, f.From
	}
	return f
}
