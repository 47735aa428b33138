package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// MySQLExtractor reads catalogs from MySQL and MariaDB
type MySQLExtractor struct {
	client     *MySQLClient
	schemaName string
}

// NewMySQLExtractor creates a new catalog extractor. An empty schema name
// falls back to the database named by the client's DSN.
func NewMySQLExtractor(client *MySQLClient, schemaName string) *MySQLExtractor {
	if schemaName == "" {
		schemaName = client.DatabaseName()
	}
	return &MySQLExtractor{
		client:     client,
		schemaName: schemaName,
	}
}

// ExtractCatalog extracts the tables selected by filter. Enum columns
// define one catalog enum each, named <table>_<column>.
func (e *MySQLExtractor) ExtractCatalog(ctx context.Context, filter TableFilter) (*catalog.Catalog, error) {
	if e.schemaName == "" {
		return nil, fmt.Errorf("failed to determine database name: the connection string names no database")
	}

	tableNames, err := e.getTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	var tables []catalog.Table
	var enums []catalog.Enum
	for _, tableName := range filter.Select(tableNames) {
		table, tableEnums, err := e.extractTable(ctx, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", tableName, err)
		}
		tables = append(tables, *table)
		enums = append(enums, tableEnums...)
	}

	return assemble(tables, enums)
}

// getTableNames returns every base table of the database
func (e *MySQLExtractor) getTableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName)
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
func (e *MySQLExtractor) extractTable(ctx context.Context, tableName string) (*catalog.Table, []catalog.Enum, error) {
	table := &catalog.Table{Name: tableName}

	columns, enums, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns

	keys, err := e.extractKeys(ctx, tableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract constraints: %w", err)
	}
	indexes, err := e.extractIndexes(ctx, tableName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	table.Constraints, table.Indexes = groupKeys(append(keys, indexes...))

	return table, enums, nil
}

// extractColumns extracts column information for a table
func (e *MySQLExtractor) extractColumns(ctx context.Context, tableName string) ([]catalog.Column, []catalog.Enum, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.extra
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var columns []catalog.Column
	var enums []catalog.Enum

	for rows.Next() {
		var col catalog.Column
		var dataType, nullable, extra string
		var defaultVal sql.NullString

		if err := rows.Scan(&col.Name, &col.Type, &dataType, &nullable, &defaultVal, &extra); err != nil {
			return nil, nil, err
		}

		col.Nullable = nullable == "YES"
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		if defaultVal.Valid {
			def := mysqlDefault(dataType, extra, defaultVal.String)
			col.Default = &def
		}

		// Check if this is an ENUM column
		if dataType == "enum" {
			values, err := extractEnumValues(col.Type)
			if err != nil {
				return nil, nil, err
			}
			col.Enum = tableName + "_" + col.Name
			enums = append(enums, catalog.Enum{Name: col.Enum, Values: values})
		}

		columns = append(columns, col)
	}

	return columns, enums, rows.Err()
}

// mysqlDefault returns the default as an SQL expression. MySQL reports
// literal defaults unquoted and expressions verbatim, flagged in extra.
func mysqlDefault(dataType, extra, raw string) string {
	if strings.Contains(strings.ToUpper(extra), "DEFAULT_GENERATED") {
		return raw
	}
	switch dataType {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint",
		"decimal", "numeric", "float", "double", "bit", "year":
		return raw
	}
	if strings.HasPrefix(strings.ToUpper(raw), "CURRENT_TIMESTAMP") {
		return raw
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		// MariaDB quotes literals itself
		return raw
	}
	return "'" + strings.ReplaceAll(raw, "'", "''") + "'"
}

// extractEnumValues parses enum values from the column type string
// MySQL stores enum types as "enum('value1','value2','value3')"
func extractEnumValues(columnType string) ([]string, error) {
	start := strings.Index(columnType, "(")
	end := strings.LastIndex(columnType, ")")
	if !strings.HasPrefix(strings.ToLower(columnType), "enum(") || end <= start {
		return nil, fmt.Errorf("invalid enum type format: %s", columnType)
	}
	list := columnType[start+1 : end]

	var values []string
	var cur strings.Builder
	inQuote := false
	for i := 0; i < len(list); i++ {
		c := list[i]
		switch {
		case c == '\'' && inQuote && i+1 < len(list) && list[i+1] == '\'':
			cur.WriteByte('\'')
			i++
		case c == '\'':
			inQuote = !inQuote
			if !inQuote {
				values = append(values, cur.String())
				cur.Reset()
			}
		case inQuote:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("invalid enum type format: %s", columnType)
	}
	return values, nil
}

// extractKeys extracts primary key, unique and foreign key columns
func (e *MySQLExtractor) extractKeys(ctx context.Context, tableName string) ([]keyColumn, error) {
	query := `
		SELECT
			tc.constraint_name,
			tc.constraint_type,
			kcu.column_name,
			COALESCE(kcu.referenced_table_name, ''),
			COALESCE(kcu.referenced_column_name, ''),
			COALESCE(rc.delete_rule, ''),
			COALESCE(rc.update_rule, '')
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		LEFT JOIN information_schema.referential_constraints rc
			ON rc.constraint_schema = tc.table_schema
			AND rc.constraint_name = tc.constraint_name
			AND rc.table_name = tc.table_name
		WHERE tc.table_schema = ?
			AND tc.table_name = ?
			AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY')
		ORDER BY FIELD(tc.constraint_type, 'PRIMARY KEY', 'UNIQUE', 'FOREIGN KEY'),
			tc.constraint_name,
			kcu.ordinal_position
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyColumn
	for rows.Next() {
		var k keyColumn
		if err := rows.Scan(&k.name, &k.kind, &k.column, &k.refTable, &k.refColumn, &k.onDelete, &k.onUpdate); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

// extractIndexes extracts non-unique index columns
func (e *MySQLExtractor) extractIndexes(ctx context.Context, tableName string) ([]keyColumn, error) {
	query := `
		SELECT s.index_name, s.column_name
		FROM information_schema.statistics s
		WHERE s.table_schema = ?
			AND s.table_name = ?
			AND s.non_unique = 1
			AND s.column_name IS NOT NULL
		ORDER BY s.index_name, s.seq_in_index
	`

	rows, err := e.client.GetDB().QueryContext(ctx, query, e.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []keyColumn
	for rows.Next() {
		k := keyColumn{kind: kindIndex}
		if err := rows.Scan(&k.name, &k.column); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}
