package reconcile

import (
	"regexp"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
	"github.com/tordrt/reintrospect/internal/dsl"
)

// ignoredTableDoc documents models generated for tables without a unique identifier.
const ignoredTableDoc = "The underlying table does not contain a valid unique identifier and can therefore currently not be handled by the Prisma Client."

// applicationDefaults are @default functions evaluated by the client, which
// leave no trace in the database.
var applicationDefaults = map[string]bool{
	"uuid":   true,
	"cuid":   true,
	"nanoid": true,
	"ulid":   true,
}

var numberLiteral = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// planScalars builds the scalar fields of m in catalog column order.
func (p *pass) planScalars(m *modelPlan) {
	if m.prior != nil {
		for _, f := range m.prior.Fields {
			switch f.Kind {
			case dsl.ScalarField:
				col := f.ColumnName()
				if m.table.Column(col) == nil {
					m.logger(p.log).WithField("field", f.Name).Debug("dropping field, column does not exist")
					continue
				}
				if _, dup := m.priorByColumn[col]; dup {
					continue
				}
				m.priorByColumn[col] = f
				m.fieldNames.reserve(f.Name)
			default:
				m.fieldNames.reserve(f.Name)
			}
		}
	}

	for i := range m.table.Columns {
		col := &m.table.Columns[i]
		prior := m.priorByColumn[col.Name]

		field := &dsl.Field{Kind: dsl.ScalarField, Type: p.fieldType(col, prior)}
		if prior != nil {
			field.Name = prior.Name
			field.Documentation = prior.Documentation
		} else {
			field.Name = m.fieldNames.claim(p.naming.fieldName(col.Name))
		}
		field.Attributes = p.scalarAttributes(m, col, field, prior)

		m.scalars = append(m.scalars, &plannedField{field: field, prior: prior})
		m.fieldByColumn[col.Name] = field.Name
	}

	m.model.Attributes = p.blockAttributes(m)
	if m.model.Attribute("ignore") != nil && (m.prior == nil || m.prior.Attribute("ignore") == nil) {
		m.logger(p.log).Debug("ignoring model, table has no unique identifier")
		if !strings.Contains(m.model.Documentation, ignoredTableDoc) {
			if m.model.Documentation != "" {
				m.model.Documentation += "\n"
			}
			m.model.Documentation += ignoredTableDoc
		}
	}
}

func (p *pass) fieldType(col *catalog.Column, prior *dsl.Field) dsl.FieldType {
	var t dsl.FieldType
	if e := p.enumBlocks[col.Enum]; col.Enum != "" && e != nil {
		t.Name = e.Name
	} else if scalar, ok := catalog.ScalarType(col.Type); ok {
		t.Name = scalar
	} else {
		t.Name = "Unsupported"
		t.Unsupported = col.Type
	}

	// Providers without native enums store them as text; keep the authored enum type.
	if t.Name == catalog.TypeString && prior != nil && !p.nativeEnums() && p.prior.Enum(prior.Type.Name) != nil {
		t.Name = prior.Type.Name
	}

	switch {
	case col.Array:
		t.Arity = dsl.List
	case col.Nullable:
		t.Arity = dsl.Optional
	}
	return t
}

// scalarAttributes orders field attributes as
// @id @default @unique @updatedAt @map @db.* @ignore.
func (p *pass) scalarAttributes(m *modelPlan, col *catalog.Column, field *dsl.Field, prior *dsl.Field) []*dsl.Attribute {
	var attrs []*dsl.Attribute
	table := m.table.Name

	isID := false
	if pk := m.table.PrimaryKey(); pk != nil && len(pk.Columns) == 1 && pk.Columns[0] == col.Name {
		isID = true
		attrs = append(attrs, p.withMapArg(&dsl.Attribute{Name: "id"}, pk.Name, defaultPrimaryKeyName(table)))
	}

	if def := p.defaultAttribute(col, field.Type, prior); def != nil {
		attrs = append(attrs, def)
	}

	if !isID {
		for _, u := range m.table.Uniques() {
			if len(u.Columns) == 1 && u.Columns[0] == col.Name {
				attrs = append(attrs, p.withMapArg(&dsl.Attribute{Name: "unique"}, u.Name, defaultUniqueName(table, u.Columns)))
				break
			}
		}
	}

	if prior != nil {
		if a := prior.Attribute("updatedAt"); a != nil {
			attrs = append(attrs, a)
		}
	}
	if field.Name != col.Name {
		attrs = append(attrs, mapAttribute(col.Name))
	}
	if prior != nil {
		if prior.Type.Name == field.Type.Name {
			for _, a := range prior.Attributes {
				if strings.HasPrefix(a.Name, "db.") {
					attrs = append(attrs, a)
				}
			}
		}
		if a := prior.Attribute("ignore"); a != nil {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// withMapArg adds map: "name" when name differs from the conventional one.
func (p *pass) withMapArg(attr *dsl.Attribute, name, conventional string) *dsl.Attribute {
	if p.explicitName(name, conventional) {
		attr.Args = append(attr.Args, &dsl.Arg{Name: "map", Value: dsl.String(name)})
	}
	return attr
}

func (p *pass) defaultAttribute(col *catalog.Column, t dsl.FieldType, prior *dsl.Field) *dsl.Attribute {
	var value dsl.Expr
	switch {
	case col.AutoIncrement:
		value = &dsl.FuncExpr{Name: "autoincrement"}
	case col.Default != nil:
		value = p.defaultValue(*col.Default, t)
	case prior != nil:
		if a := prior.Attribute("default"); a != nil {
			if fn, ok := a.Arg("value", 0).(*dsl.FuncExpr); ok && applicationDefaults[fn.Name] {
				return a
			}
		}
	}
	if value == nil {
		return nil
	}
	return &dsl.Attribute{Name: "default", Args: []*dsl.Arg{{Value: value}}}
}

// defaultValue maps a raw SQL default expression onto a schema value.
// Whatever has no literal form becomes dbgenerated("...").
func (p *pass) defaultValue(raw string, t dsl.FieldType) dsl.Expr {
	expr := stripParens(strings.TrimSpace(raw))
	if strings.HasPrefix(strings.ToLower(expr), "nextval(") {
		return &dsl.FuncExpr{Name: "autoincrement"}
	}

	value := stripParens(stripCast(expr))
	lowerValue := strings.ToLower(value)
	literal, quoted := unquote(value)

	if e := p.enumByName(t.Name); e != nil {
		want := value
		if quoted {
			want = literal
		}
		for _, v := range e.Values {
			if v.DBValue() == want {
				return &dsl.ConstExpr{Name: v.Name}
			}
		}
	}

	switch t.Name {
	case catalog.TypeDateTime:
		switch {
		case lowerValue == "now()", lowerValue == "getdate()", lowerValue == "sysdatetime()",
			lowerValue == "localtimestamp", strings.HasPrefix(lowerValue, "current_timestamp"):
			return &dsl.FuncExpr{Name: "now"}
		}
	case catalog.TypeBoolean:
		switch strings.ToLower(literal) {
		case "true", "1", "b'1'", "t":
			return &dsl.ConstExpr{Name: "true"}
		case "false", "0", "b'0'", "f":
			return &dsl.ConstExpr{Name: "false"}
		}
	case catalog.TypeInt, catalog.TypeBigInt, catalog.TypeFloat, catalog.TypeDecimal:
		if numberLiteral.MatchString(value) {
			return &dsl.NumberExpr{Text: value}
		}
		if quoted && numberLiteral.MatchString(literal) {
			return &dsl.NumberExpr{Text: literal}
		}
	case catalog.TypeString:
		if quoted {
			return dsl.String(literal)
		}
	}

	return &dsl.FuncExpr{Name: "dbgenerated", Args: []*dsl.Arg{{Value: dsl.String(expr)}}}
}

// enumByName finds an output enum by its schema name.
func (p *pass) enumByName(name string) *dsl.Enum {
	for _, e := range p.enumBlocks {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// stripParens removes balanced outer parentheses: ((0)) -> 0.
func stripParens(s string) string {
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && closes(s) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// closes returns the index of the parenthesis closing s[0], or -1.
func closes(s string) int {
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// stripCast removes a trailing Postgres cast: 'a'::text -> 'a', 'A'::"Status" -> 'A'.
func stripCast(s string) string {
	idx := strings.LastIndex(s, "::")
	if idx <= 0 || strings.Contains(s[idx:], "'") {
		return s
	}
	return strings.TrimSpace(s[:idx])
}

// unquote returns the content of a 'quoted', N'quoted' or "quoted" literal.
func unquote(s string) (string, bool) {
	if strings.HasPrefix(s, "N'") || strings.HasPrefix(s, "n'") {
		s = s[1:]
	}
	if len(s) < 2 {
		return s, false
	}
	switch q := s[0]; {
	case q == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
	case q == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`), true
	}
	return s, false
}

// blockAttributes orders model attributes as @@id @@unique @@index,
// then preserved prior attributes, then @@ignore.
func (p *pass) blockAttributes(m *modelPlan) []*dsl.Attribute {
	var attrs []*dsl.Attribute
	table := m.table.Name

	pk := m.table.PrimaryKey()
	if pk != nil && len(pk.Columns) > 1 {
		attrs = append(attrs, p.withMapArg(&dsl.Attribute{
			Name: "id",
			Args: []*dsl.Arg{{Value: dsl.IdentList(m.columnsToFields(pk.Columns))}},
		}, pk.Name, defaultPrimaryKeyName(table)))
	}

	uniques := m.table.Uniques()
	for _, u := range uniques {
		if len(u.Columns) < 2 {
			continue
		}
		attrs = append(attrs, p.withMapArg(&dsl.Attribute{
			Name: "unique",
			Args: []*dsl.Arg{{Value: dsl.IdentList(m.columnsToFields(u.Columns))}},
		}, u.Name, defaultUniqueName(table, u.Columns)))
	}

	for _, idx := range m.table.Indexes {
		attrs = append(attrs, p.withMapArg(&dsl.Attribute{
			Name: "index",
			Args: []*dsl.Arg{{Value: dsl.IdentList(m.columnsToFields(idx.Columns))}},
		}, idx.Name, defaultIndexName(table, idx.Columns)))
	}

	var ignore *dsl.Attribute
	if m.prior != nil {
		for _, a := range m.prior.Attributes {
			switch a.Name {
			case "id", "unique", "index":
			case "ignore":
				ignore = a
			default:
				attrs = append(attrs, a)
			}
		}
	}
	if ignore == nil && pk == nil && len(uniques) == 0 {
		ignore = &dsl.Attribute{Name: "ignore"}
	}
	if ignore != nil {
		attrs = append(attrs, ignore)
	}
	return attrs
}
