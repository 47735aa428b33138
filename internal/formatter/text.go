package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/reintrospect/internal/catalog"
)

// CatalogFormatter writes a database catalog as compact text, one block per table.
type CatalogFormatter struct {
	writer io.Writer
}

// NewCatalogFormatter creates a new catalog formatter
func NewCatalogFormatter(w io.Writer) *CatalogFormatter {
	return &CatalogFormatter{writer: w}
}

// Format writes the catalog
func (f *CatalogFormatter) Format(c *catalog.Catalog) error {
	for i, table := range c.Tables() {
		if i > 0 {
			if _, err := fmt.Fprintln(f.writer); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(f.writer, f.formatTable(table)); err != nil {
			return err
		}
	}

	enums := c.Enums()
	if len(enums) == 0 {
		return nil
	}
	var b strings.Builder
	if len(c.Tables()) > 0 {
		b.WriteString("\n")
	}
	for _, e := range enums {
		fmt.Fprintf(&b, "ENUM %s (%s)\n", e.Name, strings.Join(e.Values, "|"))
	}
	_, err := io.WriteString(f.writer, b.String())
	return err
}

func (f *CatalogFormatter) formatTable(table *catalog.Table) string {
	var b strings.Builder

	pkStr := ""
	if pk := table.PrimaryKey(); pk != nil {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(pk.Columns, ", "))
	}
	fmt.Fprintf(&b, "TABLE %s%s\n", table.Name, pkStr)

	for _, col := range table.Columns {
		fmt.Fprintf(&b, "  %s\n", formatCatalogColumn(col))
	}

	if fks := table.ForeignKeys(); len(fks) > 0 {
		b.WriteString("\n  FOREIGN KEYS:\n")
		for _, fk := range fks {
			fmt.Fprintf(&b, "    %s (%s) → %s (%s)%s\n",
				fk.Name,
				strings.Join(fk.Columns, ", "),
				fk.ReferencedTable,
				strings.Join(fk.ReferencedColumns, ", "),
				formatActions(fk))
		}
	}

	uniques := table.Uniques()
	if len(uniques) > 0 || len(table.Indexes) > 0 {
		b.WriteString("\n  INDEXES:\n")
		for _, u := range uniques {
			fmt.Fprintf(&b, "    %s (%s) UNIQUE\n", u.Name, strings.Join(u.Columns, ", "))
		}
		for _, idx := range table.Indexes {
			fmt.Fprintf(&b, "    %s (%s)\n", idx.Name, strings.Join(idx.Columns, ", "))
		}
	}

	return b.String()
}

func formatCatalogColumn(col catalog.Column) string {
	typeStr := col.Type
	if col.Array {
		typeStr += "[]"
	}
	parts := []string{col.Name + ":", typeStr}

	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.AutoIncrement {
		parts = append(parts, "AUTOINCREMENT")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+*col.Default)
	}

	return strings.Join(parts, " ")
}

// formatActions lists the referential actions that differ from NO ACTION.
func formatActions(fk *catalog.ForeignKey) string {
	var s string
	if fk.OnDelete != "" && fk.OnDelete != catalog.NoAction {
		s += " ON DELETE " + string(fk.OnDelete)
	}
	if fk.OnUpdate != "" && fk.OnUpdate != catalog.NoAction {
		s += " ON UPDATE " + string(fk.OnUpdate)
	}
	return s
}
