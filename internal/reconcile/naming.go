package reconcile

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
	"github.com/serenize/snaker"

	"github.com/tordrt/reintrospect/internal/dsl"
)

// Naming is the strategy for names of tables, columns and enums that have
// no counterpart in the prior document.
type Naming string

const (
	// NamingPreserve keeps database names, sanitizing invalid identifiers.
	NamingPreserve Naming = "preserve"
	// NamingPascal uses singular PascalCase models and camelCase fields.
	NamingPascal Naming = "pascal"
)

// ParseNaming validates a strategy name. The empty string means NamingPreserve.
func ParseNaming(s string) (Naming, error) {
	switch Naming(s) {
	case "", NamingPreserve:
		return NamingPreserve, nil
	case NamingPascal:
		return NamingPascal, nil
	}
	return "", fmt.Errorf("unknown naming strategy %q (must be %q or %q)", s, NamingPreserve, NamingPascal)
}

func (n Naming) modelName(table string) string {
	if n == NamingPascal {
		return sanitize(snaker.SnakeToCamel(inflection.Singular(table)))
	}
	return sanitize(table)
}

func (n Naming) fieldName(column string) string {
	if n == NamingPascal {
		return sanitize(lowerInitial(snaker.SnakeToCamel(column)))
	}
	return sanitize(column)
}

func (n Naming) enumName(name string) string {
	if n == NamingPascal {
		return sanitize(snaker.SnakeToCamel(name))
	}
	return sanitize(name)
}

// relationFieldName names the forward side after the target model.
func (n Naming) relationFieldName(target string) string {
	if n == NamingPascal {
		return lowerInitial(target)
	}
	return target
}

// backrefName names the back side after the owning model, plural for lists.
func (n Naming) backrefName(owner string, list bool) string {
	if n == NamingPascal {
		name := lowerInitial(owner)
		if list {
			name = inflection.Plural(name)
		}
		return name
	}
	return owner
}

// sanitize turns s into a bare identifier by replacing invalid characters.
func sanitize(s string) string {
	if dsl.IsIdentifier(s) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

// lowerInitial lowercases the leading word, keeping initialisms together:
// "ID" -> "id", "UserID" -> "userID", "URLPath" -> "urlPath".
func lowerInitial(s string) string {
	r := []rune(s)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == len(r):
		return strings.ToLower(s)
	case n > 1 && unicode.IsLower(r[n]):
		n-- // the last capital starts the next word
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// nameSet hands out unique names within one namespace.
type nameSet map[string]bool

func (s nameSet) reserve(name string) {
	s[name] = true
}

// claim returns the first free name among candidates, falling back to
// numbered variants of the first one.
func (s nameSet) claim(candidates ...string) string {
	for _, c := range candidates {
		if c != "" && !s[c] {
			s[c] = true
			return c
		}
	}
	for i := 2; ; i++ {
		c := candidates[0] + strconv.Itoa(i)
		if !s[c] {
			s[c] = true
			return c
		}
	}
}

func defaultPrimaryKeyName(table string) string {
	return table + "_pkey"
}

func defaultUniqueName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_key"
}

func defaultIndexName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_idx"
}

func defaultForeignKeyName(table string, columns []string) string {
	return table + "_" + strings.Join(columns, "_") + "_fkey"
}

// explicitName reports whether a constraint name must be written as map:.
func (p *pass) explicitName(name, conventional string) bool {
	if name == "" || name == conventional || p.provider == "sqlite" {
		return false
	}
	if strings.HasPrefix(name, "sqlite_autoindex_") {
		return false
	}
	return !(p.provider == "mysql" && name == "PRIMARY")
}
