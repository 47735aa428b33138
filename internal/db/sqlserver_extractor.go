package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// SQLServerExtractor reads catalogs from SQL Server
type SQLServerExtractor struct {
	client *SQLServerClient
	schema string
}

// NewSQLServerExtractor creates a new catalog extractor. An empty schema
// name falls back to the one named by the client's connection string.
func NewSQLServerExtractor(client *SQLServerClient, schemaName string) *SQLServerExtractor {
	if schemaName == "" {
		schemaName = client.Schema()
	}
	return &SQLServerExtractor{client: client, schema: schemaName}
}

// ExtractCatalog extracts the tables selected by filter. SQL Server has no enums.
func (e *SQLServerExtractor) ExtractCatalog(ctx context.Context, filter TableFilter) (*catalog.Catalog, error) {
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

// getTableNames returns every user table of the schema
func (e *SQLServerExtractor) getTableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT t.name
		FROM sys.tables t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1 AND t.is_ms_shipped = 0
		ORDER BY t.name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// extractTable extracts all information for a single table
func (e *SQLServerExtractor) extractTable(ctx context.Context, tableName string) (*catalog.Table, error) {
	table := &catalog.Table{Name: tableName}

	columns, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns

	indexKeys, err := e.extractIndexes(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	fkKeys, err := e.extractForeignKeys(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	table.Constraints, table.Indexes = groupKeys(append(indexKeys, fkKeys...))

	return table, nil
}

// extractColumns extracts column information for a table. Defaults are
// reported as written in the default constraint, e.g. ((0)) or (getdate()).
func (e *SQLServerExtractor) extractColumns(ctx context.Context, tableName string) ([]catalog.Column, error) {
	query := `
		SELECT
			c.name,
			ty.name,
			c.is_nullable,
			c.is_identity,
			OBJECT_DEFINITION(c.default_object_id)
		FROM sys.columns c
		JOIN sys.tables t ON t.object_id = c.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.types ty ON ty.user_type_id = c.user_type_id
		WHERE s.name = @p1 AND t.name = @p2
		ORDER BY c.column_id
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []catalog.Column
	for rows.Next() {
		var col catalog.Column
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.AutoIncrement, &defaultVal); err != nil {
			return nil, err
		}
		if defaultVal.Valid {
			col.Default = &defaultVal.String
		}
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// extractIndexes extracts the primary key, unique and non-unique indexes
func (e *SQLServerExtractor) extractIndexes(ctx context.Context, tableName string) ([]keyColumn, error) {
	query := `
		SELECT
			i.name,
			CASE
				WHEN i.is_primary_key = 1 THEN 'PRIMARY KEY'
				WHEN i.is_unique = 1 THEN 'UNIQUE'
				ELSE 'INDEX'
			END,
			col.name
		FROM sys.indexes i
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns col ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE s.name = @p1
			AND t.name = @p2
			AND i.type > 0
			AND ic.is_included_column = 0
		ORDER BY i.is_primary_key DESC, i.is_unique DESC, i.name, ic.key_ordinal
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyColumn
	for rows.Next() {
		var k keyColumn
		if err := rows.Scan(&k.name, &k.kind, &k.column); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// extractForeignKeys extracts foreign key columns with their referential actions
func (e *SQLServerExtractor) extractForeignKeys(ctx context.Context, tableName string) ([]keyColumn, error) {
	query := `
		SELECT
			fk.name,
			pc.name,
			rt.name,
			rc.name,
			fk.delete_referential_action_desc,
			fk.update_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables t ON t.object_id = fk.parent_object_id
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.tables rt ON rt.object_id = fk.referenced_object_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE s.name = @p1 AND t.name = @p2
		ORDER BY fk.name, fkc.constraint_column_id
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyColumn
	for rows.Next() {
		k := keyColumn{kind: kindForeignKey}
		if err := rows.Scan(&k.name, &k.column, &k.refTable, &k.refColumn, &k.onDelete, &k.onUpdate); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
