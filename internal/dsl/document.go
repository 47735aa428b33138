// Package dsl models a schema document: datasource and generator
// configuration, models with their fields and attributes, and enums.
//
// Documents are produced by Parse and by the reconciliation engine and are
// turned back into text by the formatter package. A parsed document is
// treated as read-only by its consumers.
package dsl

// Block is a top-level block of a document.
type Block interface {
	BlockName() string
	block()
}

// Document is the ordered list of top-level blocks.
type Document struct {
	Blocks []Block
}

// Datasource returns the first datasource block, or nil.
func (d *Document) Datasource() *Datasource {
	for _, b := range d.Blocks {
		if ds, ok := b.(*Datasource); ok {
			return ds
		}
	}
	return nil
}

// Models returns the models in authored order.
func (d *Document) Models() []*Model {
	var out []*Model
	for _, b := range d.Blocks {
		if m, ok := b.(*Model); ok {
			out = append(out, m)
		}
	}
	return out
}

// Model returns the model with the given name, or nil.
func (d *Document) Model(name string) *Model {
	for _, b := range d.Blocks {
		if m, ok := b.(*Model); ok && m.Name == name {
			return m
		}
	}
	return nil
}

// Enums returns the enums in authored order.
func (d *Document) Enums() []*Enum {
	var out []*Enum
	for _, b := range d.Blocks {
		if e, ok := b.(*Enum); ok {
			out = append(out, e)
		}
	}
	return out
}

// Enum returns the enum with the given name, or nil.
func (d *Document) Enum(name string) *Enum {
	for _, b := range d.Blocks {
		if e, ok := b.(*Enum); ok && e.Name == name {
			return e
		}
	}
	return nil
}

// Property is a `key = value` line of a configuration block.
type Property struct {
	Key   string
	Value Expr
}

// Datasource block. The relation-mode key is held apart from the other
// properties in RelationMode, whichever syntax it was written in.
type Datasource struct {
	Name         string
	Properties   []*Property
	RelationMode *RelationModeSetting
}

// Property returns the value of the named property, or nil.
func (d *Datasource) Property(key string) Expr {
	return property(d.Properties, key)
}

// Provider returns the provider string, or "" when it is not a string literal.
func (d *Datasource) Provider() string {
	if s, ok := d.Property("provider").(*StringExpr); ok {
		return s.Value
	}
	return ""
}

// Generator block, passed through unchanged.
type Generator struct {
	Name       string
	Properties []*Property
}

// Property returns the value of the named property, or nil.
func (g *Generator) Property(key string) Expr {
	return property(g.Properties, key)
}

func property(props []*Property, key string) Expr {
	for _, p := range props {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// Model block. DBName holds the @@map rename directive, which is not kept in Attributes.
type Model struct {
	Name          string
	DBName        string
	Documentation string
	Fields        []*Field
	Attributes    []*Attribute
}

// TableName returns the physical table the model maps to.
func (m *Model) TableName() string {
	if m.DBName != "" {
		return m.DBName
	}
	return m.Name
}

// Field returns the named field, or nil.
func (m *Model) Field(name string) *Field {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldIndex returns the position of the named field, or -1.
func (m *Model) FieldIndex(name string) int {
	for i, f := range m.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// ScalarFieldForColumn returns the scalar field mapped to column, or nil.
func (m *Model) ScalarFieldForColumn(column string) *Field {
	for _, f := range m.Fields {
		if f.Kind == ScalarField && f.ColumnName() == column {
			return f
		}
	}
	return nil
}

// Attribute returns the first block attribute with the given name, or nil.
func (m *Model) Attribute(name string) *Attribute {
	return findAttribute(m.Attributes, name)
}

// Enum block.
type Enum struct {
	Name          string
	DBName        string
	Documentation string
	Values        []*EnumValue
	Attributes    []*Attribute
}

// EnumValue is one member of an enum.
type EnumValue struct {
	Name       string
	Attributes []*Attribute
}

// DBValue returns the database value the member maps to.
func (v *EnumValue) DBValue() string {
	if a := findAttribute(v.Attributes, "map"); a != nil {
		if s, ok := a.Arg("name", 0).(*StringExpr); ok {
			return s.Value
		}
	}
	return v.Name
}

// TypeName returns the native type name the enum maps to.
func (e *Enum) TypeName() string {
	if e.DBName != "" {
		return e.DBName
	}
	return e.Name
}

func (*Datasource) block() {}
func (*Generator) block()  {}
func (*Model) block()      {}
func (*Enum) block()       {}

func (d *Datasource) BlockName() string { return d.Name }
func (g *Generator) BlockName() string  { return g.Name }
func (m *Model) BlockName() string      { return m.Name }
func (e *Enum) BlockName() string       { return e.Name }
