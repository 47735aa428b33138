// Package db reads catalogs from live databases.
//
// Each provider pairs a client, which owns the connection, with an
// extractor that queries the system catalog and normalizes the result
// into a *catalog.Catalog.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// CatalogExtractor reads a catalog snapshot.
type CatalogExtractor interface {
	ExtractCatalog(ctx context.Context, filter TableFilter) (*catalog.Catalog, error)
}

var (
	_ CatalogExtractor = (*PostgresExtractor)(nil)
	_ CatalogExtractor = (*MySQLExtractor)(nil)
	_ CatalogExtractor = (*SQLiteExtractor)(nil)
	_ CatalogExtractor = (*SQLServerExtractor)(nil)
)

// TableFilter selects the tables of a catalog.
// An empty Tables list selects every table; Exclude is applied afterwards.
type TableFilter struct {
	Tables  []string
	Exclude []string
}

// Allows reports whether the table passes the filter.
func (f TableFilter) Allows(table string) bool {
	for _, t := range f.Exclude {
		if t == table {
			return false
		}
	}
	if len(f.Tables) == 0 {
		return true
	}
	for _, t := range f.Tables {
		if t == table {
			return true
		}
	}
	return false
}

// Select keeps the names that pass the filter, in order.
func (f TableFilter) Select(names []string) []string {
	var out []string
	for _, n := range names {
		if f.Allows(n) {
			out = append(out, n)
		}
	}
	return out
}

// assemble builds the catalog from extracted tables. Foreign keys that
// reference a table outside the selection are dropped, since the catalog
// must be closed under references.
func assemble(tables []catalog.Table, enums []catalog.Enum) (*catalog.Catalog, error) {
	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t.Name] = true
	}
	for i := range tables {
		kept := tables[i].Constraints[:0]
		for _, c := range tables[i].Constraints {
			if fk, ok := c.(*catalog.ForeignKey); ok && !present[fk.ReferencedTable] {
				continue
			}
			kept = append(kept, c)
		}
		tables[i].Constraints = kept
	}

	cat, err := catalog.New(tables, enums)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	return cat, nil
}

// Key kinds reported by the information schema.
const (
	kindPrimaryKey = "PRIMARY KEY"
	kindUnique     = "UNIQUE"
	kindForeignKey = "FOREIGN KEY"
	kindIndex      = "INDEX"
)

// keyColumn is one column of a constraint or index, as most system
// catalogs return them.
type keyColumn struct {
	name      string
	kind      string
	column    string
	refTable  string
	refColumn string
	onDelete  string
	onUpdate  string
}

// groupKeys merges key columns into constraints and indexes. Constraints
// keep the order in which they are first seen, columns the row order.
func groupKeys(rows []keyColumn) ([]catalog.Constraint, []catalog.Index) {
	type group struct {
		first   keyColumn
		columns []string
		refs    []string
	}
	var order []string
	groups := make(map[string]*group)
	for _, r := range rows {
		k := r.kind + "\x00" + r.name
		g := groups[k]
		if g == nil {
			g = &group{first: r}
			groups[k] = g
			order = append(order, k)
		}
		g.columns = append(g.columns, r.column)
		if r.refColumn != "" {
			g.refs = append(g.refs, r.refColumn)
		}
	}

	var constraints []catalog.Constraint
	var indexes []catalog.Index
	for _, k := range order {
		g := groups[k]
		switch g.first.kind {
		case kindPrimaryKey:
			constraints = append(constraints, &catalog.PrimaryKey{Name: g.first.name, Columns: g.columns})
		case kindUnique:
			constraints = append(constraints, &catalog.Unique{Name: g.first.name, Columns: g.columns})
		case kindForeignKey:
			constraints = append(constraints, &catalog.ForeignKey{
				Name:              g.first.name,
				Columns:           g.columns,
				ReferencedTable:   g.first.refTable,
				ReferencedColumns: g.refs,
				OnDelete:          parseAction(g.first.onDelete),
				OnUpdate:          parseAction(g.first.onUpdate),
			})
		case kindIndex:
			indexes = append(indexes, catalog.Index{Name: g.first.name, Columns: g.columns})
		}
	}
	return constraints, indexes
}

// parseAction normalizes a referential action as spelled by the providers:
// "SET NULL", "SET_NULL", "set null" or a Postgres action code.
func parseAction(s string) catalog.ReferentialAction {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "RESTRICT", "R":
		return catalog.Restrict
	case "CASCADE", "C":
		return catalog.Cascade
	case "SET NULL", "N":
		return catalog.SetNull
	case "SET DEFAULT", "D":
		return catalog.SetDefault
	}
	return catalog.NoAction
}
