package formatter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/reintrospect/internal/dsl"
)

func TestSchemaFormatter(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "config blocks are aligned and re-indented",
			src: `generator client {
    provider = "prisma-client-js"
    previewFeatures = ["referentialIntegrity"]
}
datasource db {
    provider = "sqlserver"
    url = env("TEST_DATABASE_URL")
    relationMode = "prisma"
}
`,
			want: `generator client {
  provider        = "prisma-client-js"
  previewFeatures = ["referentialIntegrity"]
}

datasource db {
  provider     = "sqlserver"
  url          = env("TEST_DATABASE_URL")
  relationMode = "prisma"
}
`,
		},
		{
			name: "fields are aligned and block attributes follow a blank line",
			src: `model Foo {
  id Int @id
  bar Bar @relation(fields: [bar_id], references: [id])
  bar_id Int @unique
  @@map("foo_table")
}

model Bar {
  id Int @id
  foo Foo?
  @@map("bar_table")
}
`,
			want: `model Foo {
  id     Int @id
  bar    Bar @relation(fields: [bar_id], references: [id])
  bar_id Int @unique

  @@map("foo_table")
}

model Bar {
  id  Int  @id
  foo Foo?

  @@map("bar_table")
}
`,
		},
		{
			name: "documentation, enums and map before ignore",
			src: `/// Legacy table.
model Log {
  /// Free text.
  line String?
  kind Kind @default(INFO)

  @@ignore
  @@map("log")
}

enum Kind {
  INFO
  WARN @map("warning")
  @@map("log_kind")
}
`,
			want: `/// Legacy table.
model Log {
  /// Free text.
  line String?
  kind Kind    @default(INFO)

  @@map("log")
  @@ignore
}

enum Kind {
  INFO
  WARN @map("warning")

  @@map("log_kind")
}
`,
		},
		{
			name: "strings are escaped",
			src: `model A {
  id Int @id @default(dbgenerated("'a\"b' || '\\d'"))
}
`,
			want: `model A {
  id Int @id @default(dbgenerated("'a\"b' || '\\d'"))
}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := dsl.Parse([]byte(tt.src))
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, NewSchemaFormatter(&buf).Format(doc))
			assert.Equal(t, tt.want, buf.String())

			// Canonical text is a fixed point.
			again, err := dsl.Parse(buf.Bytes())
			require.NoError(t, err)
			assert.Equal(t, tt.want, Render(again))
		})
	}
}

func TestRenderRelationModeKey(t *testing.T) {
	doc := &dsl.Document{Blocks: []dsl.Block{&dsl.Datasource{
		Name: "db",
		Properties: []*dsl.Property{
			{Key: "provider", Value: dsl.String("postgresql")},
			{Key: "url", Value: &dsl.FuncExpr{Name: "env", Args: []*dsl.Arg{{Value: dsl.String("DATABASE_URL")}}}},
		},
		RelationMode: dsl.LegacyReferentialIntegrity(dsl.ModeForeignKeys),
	}}}

	want := `datasource db {
  provider             = "postgresql"
  url                  = env("DATABASE_URL")
  referentialIntegrity = "foreignKeys"
}
`
	assert.Equal(t, want, Render(doc))
	assert.Len(t, doc.Blocks[0].(*dsl.Datasource).Properties, 2, "rendering does not modify the document")
}

func TestRenderRelationModeAuthoredPosition(t *testing.T) {
	src := `datasource db {
  provider     = "mysql"
  relationMode = "prisma"
  url          = env("DATABASE_URL")
}
`
	doc, err := dsl.Parse([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, src, Render(doc))

	first, err := dsl.Parse([]byte("datasource db {\n  referentialIntegrity = \"prisma\"\n  provider = \"mysql\"\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, `datasource db {
  referentialIntegrity = "prisma"
  provider             = "mysql"
}
`, Render(first))
}

func TestFormatExpr(t *testing.T) {
	tests := []struct {
		name string
		expr dsl.Expr
		want string
	}{
		{"string", dsl.String("a\nb"), `"a\nb"`},
		{"number", &dsl.NumberExpr{Text: "-2.5"}, "-2.5"},
		{"constant", &dsl.ConstExpr{Name: "Cascade"}, "Cascade"},
		{"function without args", &dsl.FuncExpr{Name: "now"}, "now()"},
		{"list", dsl.IdentList([]string{"a", "b"}), "[a, b]"},
		{"named args", &dsl.FuncExpr{Name: "f", Args: []*dsl.Arg{{Name: "sort", Value: &dsl.ConstExpr{Name: "Desc"}}}}, "f(sort: Desc)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatExpr(tt.expr))
		})
	}
}

func TestFormatType(t *testing.T) {
	assert.Equal(t, "Int", FormatType(dsl.FieldType{Name: "Int"}))
	assert.Equal(t, "Post[]", FormatType(dsl.FieldType{Name: "Post", Arity: dsl.List}))
	assert.Equal(t, `Unsupported("xml")?`, FormatType(dsl.FieldType{Name: "Unsupported", Unsupported: "xml", Arity: dsl.Optional}))
}
