package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// PostgresExtractor reads catalogs from PostgreSQL and CockroachDB
type PostgresExtractor struct {
	client *PostgresClient
	schema string
}

// NewPostgresExtractor creates a new catalog extractor. An empty schema
// name falls back to the one named by the client's connection URL.
func NewPostgresExtractor(client *PostgresClient, schemaName string) *PostgresExtractor {
	if schemaName == "" {
		schemaName = client.Schema()
	}
	return &PostgresExtractor{
		client: client,
		schema: schemaName,
	}
}

// ExtractCatalog extracts the tables selected by filter and every enum of the schema
func (e *PostgresExtractor) ExtractCatalog(ctx context.Context, filter TableFilter) (*catalog.Catalog, error) {
	tableNames, err := e.getTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	enums, err := e.extractEnums(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract enums: %w", err)
	}

	var tables []catalog.Table
	for _, tableName := range filter.Select(tableNames) {
		table, err := e.extractTable(ctx, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", tableName, err)
		}
		tables = append(tables, *table)
	}

	return assemble(tables, enums)
}

// getTableNames returns every base table of the schema
func (e *PostgresExtractor) getTableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema)
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
func (e *PostgresExtractor) extractTable(ctx context.Context, tableName string) (*catalog.Table, error) {
	table := &catalog.Table{Name: tableName}

	columns, err := e.extractColumns(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	table.Columns = columns

	constraints, err := e.extractConstraints(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract constraints: %w", err)
	}
	table.Constraints = constraints

	uniques, indexes, err := e.extractIndexes(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	table.Constraints = append(table.Constraints, uniques...)
	table.Indexes = indexes

	return table, nil
}

// normalizePostgresType maps verbose SQL type names to commonly-used PostgreSQL equivalents
func normalizePostgresType(formatted string) string {
	switch {
	case strings.HasSuffix(formatted, " with time zone"):
		return insertBeforeModifier(strings.TrimSuffix(formatted, " with time zone"), "tz")
	case strings.HasSuffix(formatted, " without time zone"):
		return strings.TrimSuffix(formatted, " without time zone")
	case strings.HasPrefix(formatted, "character varying"):
		return "varchar" + strings.TrimPrefix(formatted, "character varying")
	case strings.HasPrefix(formatted, "character"):
		return "char" + strings.TrimPrefix(formatted, "character")
	}
	return formatted
}

// insertBeforeModifier appends suffix to the type name, ahead of any
// (precision) modifier: timestamp(3) + tz -> timestamptz(3).
func insertBeforeModifier(typ, suffix string) string {
	if i := strings.Index(typ, "("); i >= 0 {
		return typ[:i] + suffix + typ[i:]
	}
	return typ + suffix
}

// extractColumns extracts column information for a table
func (e *PostgresExtractor) extractColumns(ctx context.Context, tableName string) ([]catalog.Column, error) {
	query := `
		SELECT
			a.attname,
			format_type(COALESCE(et.oid, t.oid), a.atttypmod),
			t.typcategory = 'A' AS is_array,
			COALESCE(et.typtype, t.typtype) = 'e' AS is_enum,
			COALESCE(et.typname, t.typname) AS type_name,
			NOT a.attnotnull AS nullable,
			pg_get_expr(d.adbin, d.adrelid) AS column_default,
			a.attidentity <> '' AS is_identity
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_type t ON t.oid = a.atttypid
		LEFT JOIN pg_type et ON et.oid = t.typelem AND t.typcategory = 'A'
		LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
		WHERE n.nspname = $1
			AND c.relname = $2
			AND a.attnum > 0
			AND NOT a.attisdropped
		ORDER BY a.attnum
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []catalog.Column
	for rows.Next() {
		var col catalog.Column
		var formatted, typeName string
		var isEnum, isIdentity bool
		var defaultVal *string

		if err := rows.Scan(&col.Name, &formatted, &col.Array, &isEnum, &typeName, &col.Nullable, &defaultVal, &isIdentity); err != nil {
			return nil, err
		}

		col.Type = normalizePostgresType(formatted)
		if isEnum {
			col.Type = typeName
			col.Enum = typeName
		}

		switch {
		case isIdentity:
			col.AutoIncrement = true
		case defaultVal != nil && strings.HasPrefix(*defaultVal, "nextval("):
			col.AutoIncrement = true
		default:
			col.Default = defaultVal
		}

		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// extractEnums extracts every enum type of the schema with its labels in sort order
func (e *PostgresExtractor) extractEnums(ctx context.Context) ([]catalog.Enum, error) {
	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON t.typnamespace = n.oid
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enums []catalog.Enum
	for rows.Next() {
		var typName, enumLabel string
		if err := rows.Scan(&typName, &enumLabel); err != nil {
			return nil, err
		}
		if n := len(enums); n == 0 || enums[n-1].Name != typName {
			enums = append(enums, catalog.Enum{Name: typName})
		}
		last := &enums[len(enums)-1]
		last.Values = append(last.Values, enumLabel)
	}

	return enums, rows.Err()
}

// extractConstraints extracts the primary key, unique constraints and foreign keys
func (e *PostgresExtractor) extractConstraints(ctx context.Context, tableName string) ([]catalog.Constraint, error) {
	query := `
		SELECT
			con.conname,
			con.contype::text,
			ARRAY(
				SELECT a.attname
				FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS column_names,
			COALESCE(ref.relname, '') AS referenced_table,
			ARRAY(
				SELECT a.attname
				FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
				JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum
				ORDER BY k.ord
			) AS referenced_columns,
			con.confdeltype::text,
			con.confupdtype::text
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class ref ON ref.oid = con.confrelid
		WHERE n.nspname = $1
			AND c.relname = $2
			AND con.contype IN ('p', 'u', 'f')
		ORDER BY CASE con.contype WHEN 'p' THEN 0 WHEN 'u' THEN 1 ELSE 2 END, con.conname
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var constraints []catalog.Constraint
	for rows.Next() {
		var name, kind, refTable, onDelete, onUpdate string
		var columns, refColumns []string

		if err := rows.Scan(&name, &kind, &columns, &refTable, &refColumns, &onDelete, &onUpdate); err != nil {
			return nil, err
		}

		switch kind {
		case "p":
			constraints = append(constraints, &catalog.PrimaryKey{Name: name, Columns: columns})
		case "u":
			constraints = append(constraints, &catalog.Unique{Name: name, Columns: columns})
		case "f":
			constraints = append(constraints, &catalog.ForeignKey{
				Name:              name,
				Columns:           columns,
				ReferencedTable:   refTable,
				ReferencedColumns: refColumns,
				OnDelete:          parseAction(onDelete),
				OnUpdate:          parseAction(onUpdate),
			})
		}
	}

	return constraints, rows.Err()
}

// extractIndexes extracts indexes that do not back a constraint. Unique
// indexes are returned as unique constraints.
func (e *PostgresExtractor) extractIndexes(ctx context.Context, tableName string) ([]catalog.Constraint, []catalog.Index, error) {
	query := `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
			AND NOT EXISTS (SELECT 1 FROM pg_constraint con WHERE con.conindid = ix.indexrelid)
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := e.client.GetConnection().Query(ctx, query, e.schema, tableName)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var uniques []catalog.Constraint
	var indexes []catalog.Index
	for rows.Next() {
		var name string
		var unique bool
		var columns []string
		if err := rows.Scan(&name, &unique, &columns); err != nil {
			return nil, nil, err
		}
		if unique {
			uniques = append(uniques, &catalog.Unique{Name: name, Columns: columns})
		} else {
			indexes = append(indexes, catalog.Index{Name: name, Columns: columns})
		}
	}

	return uniques, indexes, rows.Err()
}
