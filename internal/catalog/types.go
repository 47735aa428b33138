package catalog

import (
	"strings"
)

// Scalar types of the schema language.
const (
	TypeInt      = "Int"
	TypeBigInt   = "BigInt"
	TypeFloat    = "Float"
	TypeDecimal  = "Decimal"
	TypeBoolean  = "Boolean"
	TypeString   = "String"
	TypeDateTime = "DateTime"
	TypeBytes    = "Bytes"
	TypeJSON     = "Json"
)

// IsScalar reports whether name is one of the built-in scalar type names.
func IsScalar(name string) bool {
	switch name {
	case TypeInt, TypeBigInt, TypeFloat, TypeDecimal, TypeBoolean,
		TypeString, TypeDateTime, TypeBytes, TypeJSON:
		return true
	}
	return false
}

// ScalarType maps a native column type to a scalar type name.
// ok is false when the type has no scalar equivalent and must be rendered as Unsupported.
func ScalarType(nativeType string) (scalar string, ok bool) {
	raw := strings.ToLower(strings.TrimSpace(nativeType))

	// mysql tinyint(1) is the conventional boolean
	if raw == "tinyint(1)" || raw == "bit(1)" {
		return TypeBoolean, true
	}

	base := raw
	if i := strings.Index(base, "("); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	base = strings.TrimSuffix(base, " unsigned")
	base = strings.TrimPrefix(base, "_") // postgres array element types (_int4)

	switch base {
	case "int", "integer", "int2", "int4", "smallint", "tinyint", "mediumint",
		"serial", "smallserial", "serial4", "serial2", "year":
		return TypeInt, true
	case "bigint", "int8", "bigserial", "serial8":
		return TypeBigInt, true
	case "float", "float4", "float8", "real", "double", "double precision":
		return TypeFloat, true
	case "decimal", "numeric", "money", "smallmoney", "dec":
		return TypeDecimal, true
	case "bool", "boolean", "bit":
		return TypeBoolean, true
	case "char", "varchar", "nchar", "nvarchar", "text", "ntext", "tinytext",
		"mediumtext", "longtext", "character", "character varying", "bpchar",
		"uuid", "citext", "xml", "uniqueidentifier", "inet", "string", "clob":
		return TypeString, true
	case "date", "time", "timetz", "datetime", "datetime2", "smalldatetime",
		"datetimeoffset", "timestamp", "timestamptz", "timestamp without time zone",
		"timestamp with time zone", "time without time zone", "time with time zone":
		return TypeDateTime, true
	case "bytea", "blob", "tinyblob", "mediumblob", "longblob", "binary",
		"varbinary", "image":
		return TypeBytes, true
	case "json", "jsonb":
		return TypeJSON, true
	}
	return "", false
}
