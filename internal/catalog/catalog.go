// Package catalog holds the normalized, read-only snapshot of a database's
// structure: tables, columns, constraints and enums.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMalformed is returned when a catalog violates its structural invariants.
var ErrMalformed = errors.New("malformed catalog")

// ReferentialAction is the normalized ON DELETE / ON UPDATE behavior of a foreign key.
type ReferentialAction string

// Referential actions as reported by the catalog providers.
const (
	NoAction   ReferentialAction = "NO ACTION"
	Restrict   ReferentialAction = "RESTRICT"
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	SetDefault ReferentialAction = "SET DEFAULT"
)

// Table represents a database table
type Table struct {
	Name        string
	Columns     []Column
	Constraints []Constraint
	Indexes     []Index
}

// Column represents a table column
type Column struct {
	Name          string
	Type          string
	Nullable      bool
	Default       *string
	AutoIncrement bool
	Array         bool
	// Enum names the catalog enum the column is typed with, if any.
	Enum string
}

// Constraint is one of PrimaryKey, Unique or ForeignKey.
type Constraint interface {
	ConstraintName() string
	ConstrainedColumns() []string
	constraint()
}

// PrimaryKey constraint.
type PrimaryKey struct {
	Name    string
	Columns []string
}

// Unique constraint or unique index.
type Unique struct {
	Name    string
	Columns []string
}

// ForeignKey constraint. ReferencedColumns pair positionally with Columns.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          ReferentialAction
	OnUpdate          ReferentialAction
}

// Index represents a non-unique secondary index
type Index struct {
	Name    string
	Columns []string
}

// Enum represents a native enum type
type Enum struct {
	Name   string
	Values []string
}

func (c *PrimaryKey) ConstraintName() string       { return c.Name }
func (c *PrimaryKey) ConstrainedColumns() []string { return c.Columns }
func (*PrimaryKey) constraint()                    {}

func (c *Unique) ConstraintName() string       { return c.Name }
func (c *Unique) ConstrainedColumns() []string { return c.Columns }
func (*Unique) constraint()                    {}

func (c *ForeignKey) ConstraintName() string       { return c.Name }
func (c *ForeignKey) ConstrainedColumns() []string { return c.Columns }
func (*ForeignKey) constraint()                    {}

// Pairs reports whether the foreign key maps columns onto refColumns, in any order.
func (c *ForeignKey) Pairs(columns, refColumns []string) bool {
	if len(columns) != len(c.Columns) || len(refColumns) != len(c.ReferencedColumns) {
		return false
	}
	want := make(map[string]string, len(c.Columns))
	for i, col := range c.Columns {
		want[col] = c.ReferencedColumns[i]
	}
	for i, col := range columns {
		if ref, ok := want[col]; !ok || ref != refColumns[i] {
			return false
		}
	}
	return true
}

// Column returns the named column or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// PrimaryKey returns the table's primary key or nil.
func (t *Table) PrimaryKey() *PrimaryKey {
	for _, c := range t.Constraints {
		if pk, ok := c.(*PrimaryKey); ok {
			return pk
		}
	}
	return nil
}

// Uniques returns the unique constraints in catalog order.
func (t *Table) Uniques() []*Unique {
	var out []*Unique
	for _, c := range t.Constraints {
		if u, ok := c.(*Unique); ok {
			out = append(out, u)
		}
	}
	return out
}

// ForeignKeys returns the foreign keys in catalog order.
func (t *Table) ForeignKeys() []*ForeignKey {
	var out []*ForeignKey
	for _, c := range t.Constraints {
		if fk, ok := c.(*ForeignKey); ok {
			out = append(out, fk)
		}
	}
	return out
}

// Catalog is an immutable snapshot of the database structure.
type Catalog struct {
	tables  []*Table
	byName  map[string]*Table
	enums   []Enum
	fks     map[string][]*ForeignKey
	uniques map[string]bool
}

// New validates the tables and builds the lookup indexes.
// Tables are copied; the caller may reuse its slices afterwards.
func New(tables []Table, enums []Enum) (*Catalog, error) {
	c := &Catalog{
		byName:  make(map[string]*Table, len(tables)),
		fks:     make(map[string][]*ForeignKey),
		uniques: make(map[string]bool),
	}

	enumSet := make(map[string]bool, len(enums))
	for _, e := range enums {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: enum without a name", ErrMalformed)
		}
		if enumSet[e.Name] {
			return nil, fmt.Errorf("%w: duplicate enum %s", ErrMalformed, e.Name)
		}
		enumSet[e.Name] = true
		c.enums = append(c.enums, Enum{Name: e.Name, Values: append([]string(nil), e.Values...)})
	}

	// First pass: tables, columns and local constraints.
	for i := range tables {
		t, err := copyTable(&tables[i], enumSet)
		if err != nil {
			return nil, err
		}
		if _, ok := c.byName[t.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate table %s", ErrMalformed, t.Name)
		}
		c.tables = append(c.tables, t)
		c.byName[t.Name] = t

		for _, con := range t.Constraints {
			switch con.(type) {
			case *PrimaryKey, *Unique:
				c.uniques[key(t.Name, con.ConstrainedColumns())] = true
			}
		}
	}

	// Second pass: foreign keys need every table and its uniqueness set.
	for _, t := range c.tables {
		for _, fk := range t.ForeignKeys() {
			ref, ok := c.byName[fk.ReferencedTable]
			if !ok {
				return nil, fmt.Errorf("%w: foreign key %s on %s references unknown table %s",
					ErrMalformed, fk.Name, t.Name, fk.ReferencedTable)
			}
			if len(fk.ReferencedColumns) != len(fk.Columns) {
				return nil, fmt.Errorf("%w: foreign key %s on %s has %d columns but references %d",
					ErrMalformed, fk.Name, t.Name, len(fk.Columns), len(fk.ReferencedColumns))
			}
			for _, col := range fk.ReferencedColumns {
				if ref.Column(col) == nil {
					return nil, fmt.Errorf("%w: foreign key %s on %s references unknown column %s.%s",
						ErrMalformed, fk.Name, t.Name, ref.Name, col)
				}
			}
			if !c.uniques[key(ref.Name, fk.ReferencedColumns)] {
				return nil, fmt.Errorf("%w: foreign key %s on %s references non-unique columns %s(%s)",
					ErrMalformed, fk.Name, t.Name, ref.Name, strings.Join(fk.ReferencedColumns, ", "))
			}
			k := key(t.Name, fk.Columns)
			c.fks[k] = append(c.fks[k], fk)
		}
	}

	return c, nil
}

func copyTable(src *Table, enums map[string]bool) (*Table, error) {
	if src.Name == "" {
		return nil, fmt.Errorf("%w: table without a name", ErrMalformed)
	}
	t := &Table{Name: src.Name}

	seen := make(map[string]bool, len(src.Columns))
	for _, col := range src.Columns {
		if col.Name == "" {
			return nil, fmt.Errorf("%w: column without a name in %s", ErrMalformed, src.Name)
		}
		if seen[col.Name] {
			return nil, fmt.Errorf("%w: duplicate column %s.%s", ErrMalformed, src.Name, col.Name)
		}
		if col.Enum != "" && !enums[col.Enum] {
			return nil, fmt.Errorf("%w: column %s.%s uses unknown enum %s", ErrMalformed, src.Name, col.Name, col.Enum)
		}
		seen[col.Name] = true
		if col.Default != nil {
			def := *col.Default
			col.Default = &def
		}
		t.Columns = append(t.Columns, col)
	}

	checkColumns := func(what string, cols []string) error {
		if len(cols) == 0 {
			return fmt.Errorf("%w: %s on %s has no columns", ErrMalformed, what, src.Name)
		}
		for _, col := range cols {
			if !seen[col] {
				return fmt.Errorf("%w: %s on %s references unknown column %s", ErrMalformed, what, src.Name, col)
			}
		}
		return nil
	}

	hasPK := false
	for _, con := range src.Constraints {
		switch v := con.(type) {
		case *PrimaryKey:
			if hasPK {
				return nil, fmt.Errorf("%w: table %s has more than one primary key", ErrMalformed, src.Name)
			}
			hasPK = true
			if err := checkColumns("primary key", v.Columns); err != nil {
				return nil, err
			}
			t.Constraints = append(t.Constraints, &PrimaryKey{Name: v.Name, Columns: clone(v.Columns)})
		case *Unique:
			if err := checkColumns("unique constraint "+v.Name, v.Columns); err != nil {
				return nil, err
			}
			t.Constraints = append(t.Constraints, &Unique{Name: v.Name, Columns: clone(v.Columns)})
		case *ForeignKey:
			if err := checkColumns("foreign key "+v.Name, v.Columns); err != nil {
				return nil, err
			}
			fk := *v
			fk.Columns = clone(v.Columns)
			fk.ReferencedColumns = clone(v.ReferencedColumns)
			if fk.OnDelete == "" {
				fk.OnDelete = NoAction
			}
			if fk.OnUpdate == "" {
				fk.OnUpdate = NoAction
			}
			t.Constraints = append(t.Constraints, &fk)
		case nil:
			return nil, fmt.Errorf("%w: nil constraint on %s", ErrMalformed, src.Name)
		default:
			return nil, fmt.Errorf("%w: unknown constraint %T on %s", ErrMalformed, con, src.Name)
		}
	}

	for _, idx := range src.Indexes {
		if err := checkColumns("index "+idx.Name, idx.Columns); err != nil {
			return nil, err
		}
		t.Indexes = append(t.Indexes, Index{Name: idx.Name, Columns: clone(idx.Columns)})
	}

	return t, nil
}

// Tables returns the tables in catalog order.
func (c *Catalog) Tables() []*Table {
	return append([]*Table(nil), c.tables...)
}

// Table returns the named table or nil.
func (c *Catalog) Table(name string) *Table {
	return c.byName[name]
}

// Enums returns the native enums in catalog order.
func (c *Catalog) Enums() []Enum {
	return append([]Enum(nil), c.enums...)
}

// Enum returns the named enum.
func (c *Catalog) Enum(name string) (Enum, bool) {
	for _, e := range c.enums {
		if e.Name == name {
			return e, true
		}
	}
	return Enum{}, false
}

// ForeignKey returns the foreign key of table over exactly the column set
// columns that references refTable, or nil.
func (c *Catalog) ForeignKey(table string, columns []string, refTable string) *ForeignKey {
	for _, fk := range c.fks[key(table, columns)] {
		if fk.ReferencedTable == refTable {
			return fk
		}
	}
	return nil
}

// ForeignKeysOn returns every foreign key of table over exactly the column set columns.
func (c *Catalog) ForeignKeysOn(table string, columns []string) []*ForeignKey {
	return append([]*ForeignKey(nil), c.fks[key(table, columns)]...)
}

// IsUnique reports whether the column set is covered by a primary key or unique constraint.
func (c *Catalog) IsUnique(table string, columns []string) bool {
	return c.uniques[key(table, columns)]
}

// key builds an order-insensitive lookup key for a column set.
func key(table string, columns []string) string {
	sorted := clone(columns)
	sort.Strings(sorted)
	return table + "\x00" + strings.Join(sorted, "\x00")
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
