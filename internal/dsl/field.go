package dsl

// FieldKind classifies a field.
type FieldKind int

const (
	// ScalarField is a column-backed field (scalar or enum typed).
	ScalarField FieldKind = iota
	// RelationField is the owning side of a relation, carrying fields/references.
	RelationField
	// BackrefField is the non-owning side of a relation.
	BackrefField
)

func (k FieldKind) String() string {
	switch k {
	case ScalarField:
		return "scalar"
	case RelationField:
		return "relation"
	case BackrefField:
		return "backref"
	default:
		return "unknown"
	}
}

// Arity of a field type.
type Arity int

const (
	Required Arity = iota
	Optional
	List
)

// FieldType is the declared type of a field.
type FieldType struct {
	Name  string
	Arity Arity
	// Unsupported holds the native type of an Unsupported("...") field.
	Unsupported string
}

// IsUnsupported reports whether the type is Unsupported("...").
func (t FieldType) IsUnsupported() bool {
	return t.Name == "Unsupported"
}

// Field of a model.
type Field struct {
	Name          string
	Documentation string
	Type          FieldType
	Attributes    []*Attribute
	Kind          FieldKind
	// Relation is set for RelationField and BackrefField kinds.
	Relation *Relation
}

// Relation is the structural linkage of a relation field: local fields,
// target model and remote fields. Backrefs only carry Name.
type Relation struct {
	Name       string
	Fields     []string
	References []string
}

// ColumnName returns the column the field maps to.
func (f *Field) ColumnName() string {
	if a := f.Attribute("map"); a != nil {
		if s, ok := a.Arg("name", 0).(*StringExpr); ok {
			return s.Value
		}
	}
	return f.Name
}

// Attribute returns the first field attribute with the given name, or nil.
func (f *Field) Attribute(name string) *Attribute {
	return findAttribute(f.Attributes, name)
}

// Attribute is a field (@name) or block (@@name) attribute.
// Name is stored without the leading @ characters, e.g. "db.VarChar".
type Attribute struct {
	Name string
	Args []*Arg
}

// Arg is an attribute or function argument, optionally named.
type Arg struct {
	Name  string
	Value Expr
}

// Arg returns the argument called name, or else the pos-th unnamed argument.
// pos < 0 disables the positional fallback.
func (a *Attribute) Arg(name string, pos int) Expr {
	return lookupArg(a.Args, name, pos)
}

func lookupArg(args []*Arg, name string, pos int) Expr {
	for _, arg := range args {
		if name != "" && arg.Name == name {
			return arg.Value
		}
	}
	if pos < 0 {
		return nil
	}
	n := 0
	for _, arg := range args {
		if arg.Name != "" {
			continue
		}
		if n == pos {
			return arg.Value
		}
		n++
	}
	return nil
}

func findAttribute(attrs []*Attribute, name string) *Attribute {
	for _, a := range attrs {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Expr is an attribute argument or property value.
type Expr interface {
	expr()
}

// StringExpr is a string literal.
type StringExpr struct {
	Value string
}

// NumberExpr is a numeric literal kept in its source form.
type NumberExpr struct {
	Text string
}

// ConstExpr is a bare identifier such as true, Cascade or a field reference.
type ConstExpr struct {
	Name string
}

// FuncExpr is a function call such as env("URL") or autoincrement().
type FuncExpr struct {
	Name string
	Args []*Arg
}

// ArrayExpr is a bracketed list.
type ArrayExpr struct {
	Items []Expr
}

func (*StringExpr) expr() {}
func (*NumberExpr) expr() {}
func (*ConstExpr) expr()  {}
func (*FuncExpr) expr()   {}
func (*ArrayExpr) expr()  {}

// Arg returns the argument called name, or else the pos-th unnamed argument.
func (f *FuncExpr) Arg(name string, pos int) Expr {
	return lookupArg(f.Args, name, pos)
}

// Identifiers returns the constant names of an array such as [a, b].
// ok is false if e is not an array of identifiers.
func Identifiers(e Expr) (names []string, ok bool) {
	arr, isArr := e.(*ArrayExpr)
	if !isArr {
		return nil, false
	}
	for _, item := range arr.Items {
		c, isConst := item.(*ConstExpr)
		if !isConst {
			return nil, false
		}
		names = append(names, c.Name)
	}
	return names, true
}

// IdentList builds an array expression of identifiers.
func IdentList(names []string) *ArrayExpr {
	arr := &ArrayExpr{}
	for _, n := range names {
		arr.Items = append(arr.Items, &ConstExpr{Name: n})
	}
	return arr
}

// String builds a string literal.
func String(s string) *StringExpr {
	return &StringExpr{Value: s}
}
