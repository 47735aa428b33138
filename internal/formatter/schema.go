package formatter

import (
	"io"
	"strings"

	"github.com/tordrt/reintrospect/internal/dsl"
)

const indent = "  "

// SchemaFormatter writes a document in canonical schema syntax
type SchemaFormatter struct {
	writer io.Writer
}

// NewSchemaFormatter creates a new schema formatter
func NewSchemaFormatter(w io.Writer) *SchemaFormatter {
	return &SchemaFormatter{writer: w}
}

// Format writes the document. The output is a pure function of doc.
func (f *SchemaFormatter) Format(doc *dsl.Document) error {
	_, err := io.WriteString(f.writer, Render(doc))
	return err
}

// Render returns the canonical text of doc.
func Render(doc *dsl.Document) string {
	var b strings.Builder
	for i, block := range doc.Blocks {
		if i > 0 {
			b.WriteString("\n") // Blank line between blocks
		}
		switch v := block.(type) {
		case *dsl.Datasource:
			writeConfig(&b, "datasource", v.Name, datasourceProperties(v))
		case *dsl.Generator:
			writeConfig(&b, "generator", v.Name, v.Properties)
		case *dsl.Model:
			writeModel(&b, v)
		case *dsl.Enum:
			writeEnum(&b, v)
		}
	}
	return b.String()
}

// datasourceProperties returns the properties of ds with the relation-mode
// key back at its authored position.
func datasourceProperties(ds *dsl.Datasource) []*dsl.Property {
	rm := ds.RelationMode
	if rm == nil {
		return ds.Properties
	}
	at := len(ds.Properties)
	if rm.Position > 0 && rm.Position <= len(ds.Properties) {
		at = rm.Position - 1
	}
	props := make([]*dsl.Property, 0, len(ds.Properties)+1)
	props = append(props, ds.Properties[:at]...)
	props = append(props, &dsl.Property{Key: rm.Key(), Value: dsl.String(rm.Mode.String())})
	return append(props, ds.Properties[at:]...)
}

func writeDoc(b *strings.Builder, prefix, doc string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(doc, "\n") {
		b.WriteString(strings.TrimRight(prefix+"/// "+line, " "))
		b.WriteString("\n")
	}
}

func writeConfig(b *strings.Builder, keyword, name string, props []*dsl.Property) {
	b.WriteString(keyword + " " + name + " {\n")
	width := 0
	for _, p := range props {
		if len(p.Key) > width {
			width = len(p.Key)
		}
	}
	for _, p := range props {
		b.WriteString(indent + pad(p.Key, width) + " = " + FormatExpr(p.Value) + "\n")
	}
	b.WriteString("}\n")
}

func writeModel(b *strings.Builder, m *dsl.Model) {
	writeDoc(b, "", m.Documentation)
	b.WriteString("model " + m.Name + " {\n")

	rows := make([][]string, len(m.Fields))
	for i, field := range m.Fields {
		rows[i] = []string{field.Name, FormatType(field.Type), formatAttributes("@", field.Attributes)}
	}
	widths := columnWidths(rows)
	for i, field := range m.Fields {
		writeDoc(b, indent, field.Documentation)
		writeRow(b, rows[i], widths)
	}

	attrs := m.Attributes
	if m.DBName != "" {
		attrs = withMap(attrs, m.DBName)
	}
	writeBlockAttributes(b, attrs, len(m.Fields) > 0)
	b.WriteString("}\n")
}

func writeEnum(b *strings.Builder, e *dsl.Enum) {
	writeDoc(b, "", e.Documentation)
	b.WriteString("enum " + e.Name + " {\n")

	rows := make([][]string, len(e.Values))
	for i, v := range e.Values {
		rows[i] = []string{v.Name, formatAttributes("@", v.Attributes)}
	}
	widths := columnWidths(rows)
	for _, row := range rows {
		writeRow(b, row, widths)
	}

	attrs := e.Attributes
	if e.DBName != "" {
		attrs = withMap(attrs, e.DBName)
	}
	writeBlockAttributes(b, attrs, len(e.Values) > 0)
	b.WriteString("}\n")
}

// withMap places the @@map directive among the block attributes, just
// before @@ignore if present, else last.
func withMap(attrs []*dsl.Attribute, dbName string) []*dsl.Attribute {
	mapAttr := &dsl.Attribute{Name: "map", Args: []*dsl.Arg{{Value: dsl.String(dbName)}}}
	out := make([]*dsl.Attribute, 0, len(attrs)+1)
	placed := false
	for _, a := range attrs {
		if a.Name == "ignore" && !placed {
			out = append(out, mapAttr)
			placed = true
		}
		out = append(out, a)
	}
	if !placed {
		out = append(out, mapAttr)
	}
	return out
}

func writeBlockAttributes(b *strings.Builder, attrs []*dsl.Attribute, afterRows bool) {
	if len(attrs) == 0 {
		return
	}
	if afterRows {
		b.WriteString("\n")
	}
	for _, a := range attrs {
		b.WriteString(indent + formatAttribute("@@", a) + "\n")
	}
}

func columnWidths(rows [][]string) []int {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	return widths
}

func writeRow(b *strings.Builder, row []string, widths []int) {
	var line strings.Builder
	line.WriteString(indent)
	for i, cell := range row {
		if i == len(row)-1 {
			line.WriteString(cell)
			break
		}
		line.WriteString(pad(cell, widths[i]) + " ")
	}
	b.WriteString(strings.TrimRight(line.String(), " "))
	b.WriteString("\n")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// FormatType renders a field type with its arity suffix.
func FormatType(t dsl.FieldType) string {
	name := t.Name
	if t.IsUnsupported() {
		name = "Unsupported(" + quote(t.Unsupported) + ")"
	}
	switch t.Arity {
	case dsl.Optional:
		return name + "?"
	case dsl.List:
		return name + "[]"
	}
	return name
}

func formatAttributes(prefix string, attrs []*dsl.Attribute) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = formatAttribute(prefix, a)
	}
	return strings.Join(parts, " ")
}

func formatAttribute(prefix string, a *dsl.Attribute) string {
	if a.Args == nil {
		return prefix + a.Name
	}
	return prefix + a.Name + "(" + formatArgs(a.Args) + ")"
}

func formatArgs(args []*dsl.Arg) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		if arg.Name != "" {
			parts[i] = arg.Name + ": " + FormatExpr(arg.Value)
		} else {
			parts[i] = FormatExpr(arg.Value)
		}
	}
	return strings.Join(parts, ", ")
}

// FormatExpr renders a property value or attribute argument.
func FormatExpr(e dsl.Expr) string {
	switch v := e.(type) {
	case *dsl.StringExpr:
		return quote(v.Value)
	case *dsl.NumberExpr:
		return v.Text
	case *dsl.ConstExpr:
		return v.Name
	case *dsl.FuncExpr:
		return v.Name + "(" + formatArgs(v.Args) + ")"
	case *dsl.ArrayExpr:
		items := make([]string, len(v.Items))
		for i, item := range v.Items {
			items[i] = FormatExpr(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	}
	return ""
}

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)

func quote(s string) string {
	return `"` + stringEscaper.Replace(s) + `"`
}
