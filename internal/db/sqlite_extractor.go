package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// SQLiteExtractor reads catalogs from SQLite
type SQLiteExtractor struct {
	client *SQLiteClient
}

// NewSQLiteExtractor creates a new catalog extractor
func NewSQLiteExtractor(client *SQLiteClient) *SQLiteExtractor {
	return &SQLiteExtractor{
		client: client,
	}
}

// ExtractCatalog extracts the tables selected by filter. SQLite has no enums.
func (e *SQLiteExtractor) ExtractCatalog(ctx context.Context, filter TableFilter) (*catalog.Catalog, error) {
	tableNames, err := e.getTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	var tables []catalog.Table
	for _, tableName := range filter.Select(tableNames) {
		table, err := e.extractTable(ctx, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", tableName, err)
		}
		tables = append(tables, *table)
	}

	return assemble(tables, nil)
}

// getTableNames returns every user table of the database
func (e *SQLiteExtractor) getTableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tableList []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tableList = append(tableList, tableName)
	}

	return tableList, rows.Err()
}

// extractTable extracts all information for a single table
func (e *SQLiteExtractor) extractTable(ctx context.Context, tableName string) (*catalog.Table, error) {
	table := &catalog.Table{Name: tableName}

	columns, pk, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns
	if pk != nil {
		table.Constraints = append(table.Constraints, pk)
	}

	uniques, indexes, err := e.extractIndexes(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	table.Constraints = append(table.Constraints, uniques...)
	table.Indexes = indexes

	fks, err := e.extractForeignKeys(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	table.Constraints = append(table.Constraints, fks...)

	return table, nil
}

// extractColumns extracts column information and the primary key of a table.
// A single INTEGER PRIMARY KEY column aliases the rowid and auto-increments.
func (e *SQLiteExtractor) extractColumns(ctx context.Context, tableName string) ([]catalog.Column, *catalog.PrimaryKey, error) {
	query := `SELECT cid, name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

	rows, err := e.client.GetDB().QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []catalog.Column
	pkOrder := make(map[int]string)

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, nil, err
		}

		col := catalog.Column{
			Name:     name,
			Type:     colType,
			Nullable: notNull == 0 && pk == 0,
		}
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}

		// Track primary key columns
		if pk > 0 {
			pkOrder[pk] = name
		}

		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(pkOrder) == 0 {
		return columns, nil, nil
	}

	keys := make([]int, 0, len(pkOrder))
	for k := range pkOrder {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	pk := &catalog.PrimaryKey{}
	for _, k := range keys {
		pk.Columns = append(pk.Columns, pkOrder[k])
	}

	if len(pk.Columns) == 1 {
		for i := range columns {
			if columns[i].Name == pk.Columns[0] && strings.EqualFold(columns[i].Type, "INTEGER") {
				columns[i].AutoIncrement = true
			}
		}
	}
	return columns, pk, nil
}

// extractIndexes extracts unique and non-unique indexes. Indexes created
// for the primary key are skipped.
func (e *SQLiteExtractor) extractIndexes(ctx context.Context, tableName string) ([]catalog.Constraint, []catalog.Index, error) {
	rows, err := e.client.GetDB().QueryContext(ctx, `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, tableName)
	if err != nil {
		return nil, nil, err
	}

	type indexInfo struct {
		name   string
		unique bool
	}
	var infos []indexInfo
	for rows.Next() {
		var name, origin string
		var unique int
		if err := rows.Scan(&name, &unique, &origin); err != nil {
			rows.Close()
			return nil, nil, err
		}
		if origin == "pk" {
			continue
		}
		infos = append(infos, indexInfo{name: name, unique: unique == 1})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var uniques []catalog.Constraint
	var indexes []catalog.Index
	for _, info := range infos {
		columns, err := e.indexColumns(ctx, info.name)
		if err != nil {
			return nil, nil, err
		}
		// expression indexes have no named columns
		if len(columns) == 0 {
			continue
		}
		if info.unique {
			uniques = append(uniques, &catalog.Unique{Name: info.name, Columns: columns})
		} else {
			indexes = append(indexes, catalog.Index{Name: info.name, Columns: columns})
		}
	}
	return uniques, indexes, nil
}

func (e *SQLiteExtractor) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := e.client.GetDB().QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, indexName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var colName sql.NullString
		if err := rows.Scan(&colName); err != nil {
			return nil, err
		}
		if !colName.Valid {
			return nil, nil
		}
		columns = append(columns, colName.String)
	}
	return columns, rows.Err()
}

// extractForeignKeys extracts foreign keys in declaration order. A key
// without target columns references the target's primary key.
func (e *SQLiteExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]catalog.Constraint, error) {
	// foreign_key_list numbers keys from the last declared one
	query := `SELECT id, seq, "table", "from", "to", on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id DESC, seq`

	rows, err := e.client.GetDB().QueryContext(ctx, query, tableName)
	if err != nil {
		return nil, err
	}

	var fks []*catalog.ForeignKey
	lastID := -1
	for rows.Next() {
		var id, seq int
		var targetTable, fromCol, onUpdate, onDelete string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete); err != nil {
			rows.Close()
			return nil, err
		}
		if id != lastID || len(fks) == 0 {
			fks = append(fks, &catalog.ForeignKey{
				ReferencedTable: targetTable,
				OnDelete:        parseAction(onDelete),
				OnUpdate:        parseAction(onUpdate),
			})
			lastID = id
		}
		fk := fks[len(fks)-1]
		fk.Columns = append(fk.Columns, fromCol)
		if toCol.Valid {
			fk.ReferencedColumns = append(fk.ReferencedColumns, toCol.String)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]catalog.Constraint, 0, len(fks))
	for _, fk := range fks {
		if len(fk.ReferencedColumns) == 0 {
			_, refPK, err := e.extractColumns(ctx, fk.ReferencedTable)
			if err != nil {
				return nil, err
			}
			if refPK != nil {
				fk.ReferencedColumns = refPK.Columns
			}
		}
		out = append(out, fk)
	}
	return out, nil
}
