package app

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
)

// demoScript creates a small star schema: a sales fact table keyed to
// product and store dimensions. Idempotent.
var demoScript = []string{
	`CREATE TABLE IF NOT EXISTS product (product_id INTEGER, category VARCHAR, brand VARCHAR)`,
	`CREATE TABLE IF NOT EXISTS store (store_id INTEGER, city VARCHAR, region VARCHAR)`,
	`CREATE TABLE IF NOT EXISTS sales (sale_id INTEGER, product_id INTEGER, store_id INTEGER, units INTEGER, amount DOUBLE)`,
}

// SeedDemo populates db with the demo star schema unless its sales table
// already has rows.
func SeedDemo(ctx context.Context, db *sql.DB) error {
	for _, stmt := range demoScript {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed demo schema: %w", err)
		}
	}

	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&n); err != nil {
		return fmt.Errorf("check demo data: %w", err)
	}
	if n > 0 {
		return nil // already seeded
	}

	categories := []string{"food", "drink", "tools"}
	brands := []string{"acme", "globex"}
	for i := 1; i <= 6; i++ {
		if _, err := db.ExecContext(ctx, `INSERT INTO product VALUES (?, ?, ?)`,
			i, categories[(i-1)%len(categories)], brands[(i-1)%len(brands)]); err != nil {
			return fmt.Errorf("seed product %d: %w", i, err)
		}
	}
	stores := []struct{ city, region string }{
		{"Basel", "north"}, {"Zurich", "north"}, {"Geneva", "west"}, {"Lugano", "south"},
	}
	for i, s := range stores {
		if _, err := db.ExecContext(ctx, `INSERT INTO store VALUES (?, ?, ?)`, i+1, s.city, s.region); err != nil {
			return fmt.Errorf("seed store %s: %w", s.city, err)
		}
	}
	for i := 1; i <= 240; i++ {
		units := i%5 + 1
		if _, err := db.ExecContext(ctx, `INSERT INTO sales VALUES (?, ?, ?, ?, ?)`,
			i, i%6+1, i%4+1, units, float64(units)*2.5); err != nil {
			return fmt.Errorf("seed sale %d: %w", i, err)
		}
	}
	return nil
}

// RunScript executes the semicolon-separated statements read from r in
// order, stopping at the first failure.
func RunScript(ctx context.Context, db *sql.DB, r io.Reader) (int, error) {
	stmts, err := splitStatements(r)
	if err != nil {
		return 0, err
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return i, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return len(stmts), nil
}

// splitStatements splits on semicolons outside quotes and drops "--" line
// comments and empty statements.
func splitStatements(r io.Reader) ([]string, error) {
	var (
		stmts []string
		cur   strings.Builder
		quote rune
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		for i, c := range line {
			if quote != 0 {
				cur.WriteRune(c)
				if c == quote {
					quote = 0
				}
				continue
			}
			if c == '-' && strings.HasPrefix(line[i:], "--") {
				break
			}
			switch c {
			case '\'', '"':
				quote = c
				cur.WriteRune(c)
			case ';':
				flush()
			default:
				cur.WriteRune(c)
			}
		}
		cur.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	flush()
	return stmts, nil
}

// DemoLattice defines a lattice over the demo star schema.
const DemoLattice = `name: sales
root:
  table: main.sales
  children:
    - table: main.product
      on: [{parent: product_id, child: product_id}]
    - table: main.store
      on: [{parent: store_id, child: store_id}]
measures:
  - {agg: count}
  - {agg: sum, args: [sales.units]}
tiles:
  - dimensions: [product.category, store.region]
    measures: [{agg: count}, {agg: sum, args: [sales.units]}]
  - dimensions: [store.city]
    measures: [{agg: sum, args: [sales.amount]}]
`
