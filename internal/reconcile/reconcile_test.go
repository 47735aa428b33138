package reconcile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/reintrospect/internal/catalog"
	"github.com/tordrt/reintrospect/internal/dsl"
	"github.com/tordrt/reintrospect/internal/formatter"
)

func strPtr(s string) *string { return &s }

func mustCatalog(t *testing.T, tables []catalog.Table, enums ...catalog.Enum) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(tables, enums)
	require.NoError(t, err)
	return cat
}

func reconcileText(t *testing.T, cat *catalog.Catalog, prior string, opts Options) string {
	t.Helper()
	doc, err := dsl.Parse([]byte(prior))
	require.NoError(t, err)
	out, err := Reconcile(cat, doc, opts)
	require.NoError(t, err)
	return formatter.Render(out)
}

// fooBarCatalog mirrors two tables where Foo.bar_id is unique and may
// reference Bar.id through a physical foreign key.
func fooBarCatalog(t *testing.T, foo, bar string, withFK bool) *catalog.Catalog {
	fooTable := catalog.Table{
		Name: foo,
		Columns: []catalog.Column{
			{Name: "id", Type: "int"},
			{Name: "bar_id", Type: "int"},
		},
		Constraints: []catalog.Constraint{
			&catalog.PrimaryKey{Name: foo + "_pkey", Columns: []string{"id"}},
			&catalog.Unique{Name: foo + "_bar_id_key", Columns: []string{"bar_id"}},
		},
	}
	if withFK {
		fooTable.Constraints = append(fooTable.Constraints, &catalog.ForeignKey{
			Name:              foo + "_bar_id_fkey",
			Columns:           []string{"bar_id"},
			ReferencedTable:   bar,
			ReferencedColumns: []string{"id"},
			OnDelete:          catalog.NoAction,
			OnUpdate:          catalog.Cascade,
		})
	}
	barTable := catalog.Table{
		Name:        bar,
		Columns:     []catalog.Column{{Name: "id", Type: "int"}},
		Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: bar + "_pkey", Columns: []string{"id"}}},
	}
	return mustCatalog(t, []catalog.Table{fooTable, barTable})
}

const fixtureGenerator = `generator client {
    provider        = "prisma-client-js"
    previewFeatures = ["referentialIntegrity"]
}

`

const fixtureGeneratorOut = `generator client {
  provider        = "prisma-client-js"
  previewFeatures = ["referentialIntegrity"]
}

`

// mapping selects which fixture models carry an @@map attribute.
type mapping int

const (
	mapNone mapping = iota
	mapBoth
	mapBar
)

func (m mapping) tables() (foo, bar string) {
	switch m {
	case mapBoth:
		return "foo_table", "bar_table"
	case mapBar:
		return "Foo", "bar_table"
	}
	return "Foo", "Bar"
}

// fixtureInput is the authored document of the relation-mode fixtures,
// with bar declared before bar_id.
func fixtureInput(generator bool, setting string, mapped mapping) string {
	var b strings.Builder
	if generator {
		b.WriteString(fixtureGenerator)
	}
	b.WriteString("datasource db {\n    provider = \"sqlserver\"\n    url = env(\"TEST_DATABASE_URL\")\n")
	if setting != "" {
		b.WriteString("    " + setting + "\n")
	}
	b.WriteString("}\n\nmodel Foo {\n    id     Int @id\n    bar    Bar @relation(fields: [bar_id], references: [id])\n    bar_id Int @unique\n")
	if mapped == mapBoth {
		b.WriteString("\n    @@map(\"foo_table\")\n")
	}
	b.WriteString("}\n\nmodel Bar {\n    id  Int  @id\n    foo Foo?\n")
	if mapped != mapNone {
		b.WriteString("\n    @@map(\"bar_table\")\n")
	}
	b.WriteString("}\n")
	return b.String()
}

type relationShape int

const (
	relationKept relationShape = iota
	relationMoved
	relationDropped
)

func fixtureOutput(generator bool, relationMode string, mapped mapping, shape relationShape) string {
	var b strings.Builder
	if generator {
		b.WriteString(fixtureGeneratorOut)
	}
	if relationMode == "" {
		b.WriteString("datasource db {\n  provider = \"sqlserver\"\n  url      = env(\"TEST_DATABASE_URL\")\n}\n\n")
	} else {
		b.WriteString("datasource db {\n  provider     = \"sqlserver\"\n  url          = env(\"TEST_DATABASE_URL\")\n")
		b.WriteString("  relationMode = \"" + relationMode + "\"\n}\n\n")
	}

	b.WriteString("model Foo {\n")
	switch shape {
	case relationKept:
		b.WriteString("  id     Int @id\n  bar    Bar @relation(fields: [bar_id], references: [id])\n  bar_id Int @unique\n")
	case relationMoved:
		b.WriteString("  id     Int @id\n  bar_id Int @unique\n  bar    Bar @relation(fields: [bar_id], references: [id])\n")
	case relationDropped:
		b.WriteString("  id     Int @id\n  bar_id Int @unique\n")
	}
	if mapped == mapBoth {
		b.WriteString("\n  @@map(\"foo_table\")\n")
	}
	b.WriteString("}\n\nmodel Bar {\n")
	if shape == relationDropped {
		b.WriteString("  id Int @id\n")
	} else {
		b.WriteString("  id  Int  @id\n  foo Foo?\n")
	}
	if mapped != mapNone {
		b.WriteString("\n  @@map(\"bar_table\")\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func TestReconcileRelationModeFixtures(t *testing.T) {
	tests := []struct {
		name      string
		generator bool
		setting   string
		mapped    mapping
		withFK    bool
		wantMode  string
		wantShape relationShape
	}{
		{
			name:      "legacy prisma keeps relations in place",
			generator: true, setting: `referentialIntegrity = "prisma"`,
			wantShape: relationKept,
		},
		{
			name:      "legacy foreign keys moves relations to the bottom",
			generator: true, setting: `referentialIntegrity = "foreignKeys"`, withFK: true,
			wantShape: relationMoved,
		},
		{
			name:      "relation mode prisma is preserved",
			generator: true, setting: `relationMode = "prisma"`,
			wantMode: "prisma", wantShape: relationKept,
		},
		{
			name:      "relation mode foreign keys is preserved",
			generator: true, setting: `relationMode = "foreignKeys"`, withFK: true,
			wantMode: "foreignKeys", wantShape: relationMoved,
		},
		{
			name:      "no relation mode moves relations to the bottom",
			withFK:    true,
			wantShape: relationMoved,
		},
		{
			name:      "legacy prisma with @@map drops relations",
			generator: true, setting: `referentialIntegrity = "prisma"`, mapped: mapBoth,
			wantShape: relationDropped,
		},
		{
			name:      "legacy foreign keys with @@map moves relations",
			generator: true, setting: `referentialIntegrity = "foreignKeys"`, mapped: mapBoth, withFK: true,
			wantShape: relationMoved,
		},
		{
			name:      "relation mode prisma with @@map keeps relations",
			generator: true, setting: `relationMode = "prisma"`, mapped: mapBoth,
			wantMode: "prisma", wantShape: relationKept,
		},
		{
			name:      "relation mode foreign keys with @@map moves relations",
			generator: true, setting: `relationMode = "foreignKeys"`, mapped: mapBoth, withFK: true,
			wantMode: "foreignKeys", wantShape: relationMoved,
		},
		{
			name:      "no relation mode with @@map moves relations",
			mapped:    mapBoth, withFK: true,
			wantShape: relationMoved,
		},
		{
			name:      "legacy prisma with @@map on one side drops relations",
			generator: true, setting: `referentialIntegrity = "prisma"`, mapped: mapBar,
			wantShape: relationDropped,
		},
		{
			name:      "relation mode prisma with @@map on one side keeps relations",
			generator: true, setting: `relationMode = "prisma"`, mapped: mapBar,
			wantMode: "prisma", wantShape: relationKept,
		},
		{
			name:      "legacy foreign keys with @@map and no foreign key drops relations",
			generator: true, setting: `referentialIntegrity = "foreignKeys"`, mapped: mapBoth,
			wantShape: relationDropped,
		},
		{
			name:      "legacy foreign keys without foreign key keeps relations in place",
			generator: true, setting: `referentialIntegrity = "foreignKeys"`,
			wantShape: relationKept,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			foo, bar := tt.mapped.tables()
			cat := fooBarCatalog(t, foo, bar, tt.withFK)
			input := fixtureInput(tt.generator, tt.setting, tt.mapped)

			got := reconcileText(t, cat, input, Options{})
			assert.Equal(t, fixtureOutput(tt.generator, tt.wantMode, tt.mapped, tt.wantShape), got)
			assert.NotContains(t, got, dsl.ReferentialIntegrityKey)

			again := reconcileText(t, cat, got, Options{})
			assert.Equal(t, got, again, "reconciling the output again is a no-op")
		})
	}
}

func TestReconcileDeterministic(t *testing.T) {
	cat := fooBarCatalog(t, "Foo", "Bar", true)
	input := fixtureInput(true, `relationMode = "prisma"`, mapNone)

	first := reconcileText(t, cat, input, Options{})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, reconcileText(t, cat, input, Options{}))
	}
}

func TestReconcileDoesNotModifyInputs(t *testing.T) {
	cat := fooBarCatalog(t, "Foo", "Bar", true)
	input := fixtureInput(false, `referentialIntegrity = "foreignKeys"`, mapNone)
	doc, err := dsl.Parse([]byte(input))
	require.NoError(t, err)
	before := formatter.Render(doc)

	_, err = Reconcile(cat, doc, Options{})
	require.NoError(t, err)
	assert.Equal(t, before, formatter.Render(doc))
	require.NotNil(t, doc.Datasource().RelationMode)
	assert.Equal(t, "bar", doc.Model("Foo").Fields[1].Name)
}

func TestReconcileRequiresCatalog(t *testing.T) {
	_, err := Reconcile(nil, &dsl.Document{}, Options{})
	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestReconcileFieldOrdering(t *testing.T) {
	threeColumns := func(withFK bool) *catalog.Catalog {
		foo := catalog.Table{
			Name: "Foo",
			Columns: []catalog.Column{
				{Name: "id", Type: "int"},
				{Name: "bar_id", Type: "int"},
				{Name: "name", Type: "text"},
			},
			Constraints: []catalog.Constraint{
				&catalog.PrimaryKey{Name: "Foo_pkey", Columns: []string{"id"}},
			},
		}
		if withFK {
			foo.Constraints = append(foo.Constraints, &catalog.ForeignKey{
				Name: "Foo_bar_id_fkey", Columns: []string{"bar_id"},
				ReferencedTable: "Bar", ReferencedColumns: []string{"id"},
				OnDelete: catalog.Restrict, OnUpdate: catalog.Cascade,
			})
		}
		bar := catalog.Table{
			Name:        "Bar",
			Columns:     []catalog.Column{{Name: "id", Type: "int"}},
			Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "Bar_pkey", Columns: []string{"id"}}},
		}
		return mustCatalog(t, []catalog.Table{foo, bar})
	}

	tests := []struct {
		name       string
		withFK     bool
		setting    string
		fooFields  string
		wantFields []string
	}{
		{
			name:       "scalars follow catalog order, enforced relation last",
			withFK:     true,
			fooFields:  "  name String\n  bar Bar @relation(fields: [bar_id], references: [id])\n  bar_id Int\n  id Int @id\n",
			wantFields: []string{"id", "bar_id", "name", "bar"},
		},
		{
			name:       "emulated relation keeps a leading position",
			setting:    `relationMode = "prisma"`,
			fooFields:  "  bar Bar @relation(fields: [bar_id], references: [id])\n  id Int @id\n  bar_id Int\n  name String\n",
			wantFields: []string{"bar", "id", "bar_id", "name"},
		},
		{
			name:       "emulated mode keeps the position of an enforced relation",
			withFK:     true,
			setting:    `relationMode = "prisma"`,
			fooFields:  "  id Int @id\n  bar Bar @relation(fields: [bar_id], references: [id])\n  bar_id Int\n  name String\n",
			wantFields: []string{"id", "bar", "bar_id", "name"},
		},
		{
			name:       "anchor skips fields that no longer exist",
			setting:    `relationMode = "prisma"`,
			fooFields:  "  id Int @id\n  gone Int\n  bar Bar @relation(fields: [bar_id], references: [id])\n  bar_id Int\n  name String\n",
			wantFields: []string{"id", "bar", "bar_id", "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "datasource db {\n  provider = \"postgresql\"\n  url = env(\"DATABASE_URL\")\n  " + tt.setting + "\n}\n\n" +
				"model Foo {\n" + tt.fooFields + "}\n\nmodel Bar {\n  id Int @id\n  foos Foo[]\n}\n"
			prior, err := dsl.Parse([]byte(src))
			require.NoError(t, err)

			doc, err := Reconcile(threeColumns(tt.withFK), prior, Options{})
			require.NoError(t, err)

			var names []string
			for _, f := range doc.Model("Foo").Fields {
				names = append(names, f.Name)
			}
			assert.Equal(t, tt.wantFields, names)

			bar := doc.Model("Bar")
			require.Len(t, bar.Fields, 2)
			assert.Equal(t, "foos", bar.Fields[1].Name)
			assert.Equal(t, dsl.List, bar.Fields[1].Type.Arity)

			again, err := Reconcile(threeColumns(tt.withFK), doc, Options{})
			require.NoError(t, err)
			assert.Equal(t, formatter.Render(doc), formatter.Render(again))
		})
	}
}

func TestReconcileDropsUnmatchableEmulatedRelations(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{
		{
			Name:        "Foo",
			Columns:     []catalog.Column{{Name: "id", Type: "int"}, {Name: "bar_code", Type: "int"}},
			Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "Foo_pkey", Columns: []string{"id"}}},
		},
		{
			Name:        "Bar",
			Columns:     []catalog.Column{{Name: "id", Type: "int"}, {Name: "code", Type: "int"}},
			Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "Bar_pkey", Columns: []string{"id"}}},
		},
	})

	tests := []struct {
		name  string
		field string
	}{
		{"references not unique", "bar Bar @relation(fields: [bar_code], references: [code])"},
		{"references a column that is gone", "bar Bar @relation(fields: [bar_code], references: [uid])"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "datasource db {\n  provider = \"postgresql\"\n  url = env(\"DATABASE_URL\")\n  relationMode = \"prisma\"\n}\n\n" +
				"model Foo {\n  id Int @id\n  " + tt.field + "\n  bar_code Int\n}\n\n" +
				"model Bar {\n  id Int @id\n  code Int\n  uid Int\n  foos Foo[]\n}\n"

			var logs bytes.Buffer
			logger := logrus.New()
			logger.SetOutput(&logs)
			logger.SetLevel(logrus.DebugLevel)

			got := reconcileText(t, cat, src, Options{Logger: logger})
			assert.NotContains(t, got, "@relation")
			assert.NotContains(t, got, "Foo[]")
			assert.Contains(t, logs.String(), "dropping unmatchable relation")
		})
	}
}

func TestReconcileFreshIntrospection(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{
		{
			Name: "users",
			Columns: []catalog.Column{
				{Name: "id", Type: "int4", Default: strPtr("nextval('users_id_seq'::regclass)")},
				{Name: "email", Type: "varchar(255)"},
				{Name: "created_at", Type: "timestamp(3)", Default: strPtr("CURRENT_TIMESTAMP")},
				{Name: "status", Type: "user_status", Enum: "user_status", Default: strPtr("'active'::user_status")},
			},
			Constraints: []catalog.Constraint{
				&catalog.PrimaryKey{Name: "users_pkey", Columns: []string{"id"}},
				&catalog.Unique{Name: "users_email_key", Columns: []string{"email"}},
			},
		},
		{
			Name: "posts",
			Columns: []catalog.Column{
				{Name: "id", Type: "int4", Default: strPtr("nextval('posts_id_seq'::regclass)")},
				{Name: "author_id", Type: "int4", Nullable: true},
				{Name: "title", Type: "text", Default: strPtr("'untitled'::text")},
			},
			Constraints: []catalog.Constraint{
				&catalog.PrimaryKey{Name: "posts_pkey", Columns: []string{"id"}},
				&catalog.ForeignKey{
					Name: "posts_author_id_fkey", Columns: []string{"author_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"},
					OnDelete: catalog.Cascade, OnUpdate: catalog.Cascade,
				},
			},
			Indexes: []catalog.Index{{Name: "posts_title_index", Columns: []string{"title"}}},
		},
	}, catalog.Enum{Name: "user_status", Values: []string{"active", "on-hold"}})

	prior := "datasource db {\n  provider = \"postgresql\"\n  url = env(\"DATABASE_URL\")\n}\n"

	want := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model users {
  id         Int         @id @default(autoincrement())
  email      String      @unique
  created_at DateTime    @default(now())
  status     user_status @default(active)
  posts      posts[]
}

model posts {
  id        Int    @id @default(autoincrement())
  author_id Int?
  title     String @default("untitled")
  users     users? @relation(fields: [author_id], references: [id], onDelete: Cascade)

  @@index([title], map: "posts_title_index")
}

enum user_status {
  active
  on_hold @map("on-hold")
}
`
	got := reconcileText(t, cat, prior, Options{})
	assert.Equal(t, want, got)
	assert.Equal(t, got, reconcileText(t, cat, got, Options{}))
}

func TestReconcileWithoutPriorDocument(t *testing.T) {
	cat := fooBarCatalog(t, "Foo", "Bar", true)
	doc, err := Reconcile(cat, nil, Options{Provider: "sqlserver"})
	require.NoError(t, err)

	want := `model Foo {
  id     Int @id
  bar_id Int @unique
  Bar    Bar @relation(fields: [bar_id], references: [id])
}

model Bar {
  id  Int  @id
  Foo Foo?
}
`
	assert.Equal(t, want, formatter.Render(doc))
}

func TestReconcilePascalNaming(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{
		{
			Name:    "order_items",
			Columns: []catalog.Column{{Name: "id", Type: "integer"}, {Name: "order_ref", Type: "integer"}},
			Constraints: []catalog.Constraint{
				&catalog.PrimaryKey{Name: "order_items_pkey", Columns: []string{"id"}},
				&catalog.ForeignKey{
					Name: "order_items_order_ref_fkey", Columns: []string{"order_ref"},
					ReferencedTable: "orders", ReferencedColumns: []string{"id"},
					OnDelete: catalog.Restrict, OnUpdate: catalog.Cascade,
				},
			},
		},
		{
			Name:        "orders",
			Columns:     []catalog.Column{{Name: "id", Type: "integer"}},
			Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "orders_pkey", Columns: []string{"id"}}},
		},
	})

	want := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model OrderItem {
  id       Int   @id
  orderRef Int   @map("order_ref")
  order    Order @relation(fields: [orderRef], references: [id])

  @@map("order_items")
}

model Order {
  id         Int         @id
  orderItems OrderItem[]

  @@map("orders")
}
`
	prior := "datasource db {\n  provider = \"postgresql\"\n  url = env(\"DATABASE_URL\")\n}\n"
	got := reconcileText(t, cat, prior, Options{Naming: NamingPascal})
	assert.Equal(t, want, got)

	// Once written, names come from the document, whatever the strategy.
	assert.Equal(t, got, reconcileText(t, cat, got, Options{Naming: NamingPreserve}))
}

func TestReconcilePreservesAuthoredIntent(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{{
		Name: "users",
		Columns: []catalog.Column{
			{Name: "id", Type: "uuid"},
			{Name: "email_address", Type: "varchar(200)"},
			{Name: "updated_at", Type: "timestamp(3)"},
			{Name: "nickname", Type: "text", Nullable: true},
		},
		Constraints: []catalog.Constraint{
			&catalog.PrimaryKey{Name: "users_pkey", Columns: []string{"id"}},
			&catalog.Unique{Name: "users_email_address_key", Columns: []string{"email_address"}},
		},
	}})

	prior := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

/// People.
model User {
  id        String   @id @default(uuid()) @db.Uuid
  /// Login.
  email     String   @unique @map("email_address") @db.VarChar(200)
  updatedAt DateTime @updatedAt @map("updated_at")
  legacy    Int

  @@map("users")
}

model Gone {
  id Int @id
}
`
	want := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

/// People.
model User {
  id        String   @id @default(uuid()) @db.Uuid
  /// Login.
  email     String   @unique @map("email_address") @db.VarChar(200)
  updatedAt DateTime @updatedAt @map("updated_at")
  nickname  String?

  @@map("users")
}
`
	assert.Equal(t, want, reconcileText(t, cat, prior, Options{}))
}

func TestReconcileCatalogTypesWin(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{{
		Name:        "A",
		Columns:     []catalog.Column{{Name: "id", Type: "bigint"}, {Name: "note", Type: "jsonb", Nullable: true}},
		Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "A_pkey", Columns: []string{"id"}}},
	}})
	prior := "model A {\n  id Int @id @db.Integer\n  note String @db.Text\n}\n"

	want := "model A {\n  id   BigInt @id\n  note Json?\n}\n"
	assert.Equal(t, want, reconcileText(t, cat, prior, Options{Provider: "postgresql"}))
}

func TestReconcileTableWithoutIdentifier(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{{
		Name:    "logs",
		Columns: []catalog.Column{{Name: "line", Type: "TEXT", Nullable: true}},
	}})
	prior := "datasource db {\n  provider = \"sqlite\"\n  url = \"file:dev.db\"\n}\n"

	want := `datasource db {
  provider = "sqlite"
  url      = "file:dev.db"
}

/// ` + ignoredTableDoc + `
model logs {
  line String?

  @@ignore
}
`
	got := reconcileText(t, cat, prior, Options{})
	assert.Equal(t, want, got)
	assert.Equal(t, got, reconcileText(t, cat, got, Options{}))
}

func TestReconcileAmbiguousRelations(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{
		{
			Name: "messages",
			Columns: []catalog.Column{
				{Name: "id", Type: "int"},
				{Name: "sender_id", Type: "int"},
				{Name: "recipient_id", Type: "int"},
			},
			Constraints: []catalog.Constraint{
				&catalog.PrimaryKey{Name: "messages_pkey", Columns: []string{"id"}},
				&catalog.ForeignKey{Name: "messages_sender_id_fkey", Columns: []string{"sender_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"}, OnDelete: catalog.Restrict, OnUpdate: catalog.Cascade},
				&catalog.ForeignKey{Name: "msg_recipient", Columns: []string{"recipient_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"}, OnDelete: catalog.Cascade, OnUpdate: catalog.NoAction},
			},
		},
		{
			Name:        "users",
			Columns:     []catalog.Column{{Name: "id", Type: "int"}, {Name: "manager_id", Type: "int", Nullable: true}},
			Constraints: []catalog.Constraint{
				&catalog.PrimaryKey{Name: "users_pkey", Columns: []string{"id"}},
				&catalog.ForeignKey{Name: "users_manager_id_fkey", Columns: []string{"manager_id"},
					ReferencedTable: "users", ReferencedColumns: []string{"id"}, OnDelete: catalog.SetNull, OnUpdate: catalog.Cascade},
			},
		},
	})
	prior := "datasource db {\n  provider = \"postgresql\"\n  url = env(\"DATABASE_URL\")\n}\n"

	got := reconcileText(t, cat, prior, Options{})
	for _, line := range []string{
		`users                                  users   @relation("messages_sender_idTousers", fields: [sender_id], references: [id])`,
		`users_recipient_id                     users   @relation("messages_recipient_idTousers", fields: [recipient_id], references: [id], onDelete: Cascade, onUpdate: NoAction, map: "msg_recipient")`,
		`users  users?  @relation("users_manager_idTousers", fields: [manager_id], references: [id])`,
	} {
		assert.Contains(t, normalizeSpace(got), normalizeSpace(line))
	}
	assert.Contains(t, normalizeSpace(got), normalizeSpace(`messages messages[] @relation("messages_sender_idTousers")`))
	assert.Contains(t, normalizeSpace(got), normalizeSpace(`messages_recipient_id messages[] @relation("messages_recipient_idTousers")`))
	assert.Contains(t, normalizeSpace(got), normalizeSpace(`users_manager_id users[] @relation("users_manager_idTousers")`))

	assert.Equal(t, got, reconcileText(t, cat, got, Options{}))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestReconcileEnumsFollowCatalog(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{{
		Name: "tasks",
		Columns: []catalog.Column{
			{Name: "id", Type: "int"},
			{Name: "state", Type: "task_state", Enum: "task_state", Default: strPtr("'todo'::task_state")},
		},
		Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "tasks_pkey", Columns: []string{"id"}}},
	}}, catalog.Enum{Name: "task_state", Values: []string{"todo", "doing", "done"}})

	prior := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model tasks {
  id    Int       @id
  state TaskState @default(TODO)
}

enum TaskState {
  TODO    @map("todo")
  DONE    @map("done")
  ARCHIVED @map("archived")

  @@map("task_state")
}
`
	want := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model tasks {
  id    Int       @id
  state TaskState @default(TODO)
}

enum TaskState {
  TODO  @map("todo")
  doing
  DONE  @map("done")

  @@map("task_state")
}
`
	assert.Equal(t, want, reconcileText(t, cat, prior, Options{}))
}

func TestReconcileKeepsUnselectedModels(t *testing.T) {
	cat := mustCatalog(t, []catalog.Table{{
		Name:        "a",
		Columns:     []catalog.Column{{Name: "id", Type: "int"}, {Name: "b_id", Type: "text"}},
		Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "a_pkey", Columns: []string{"id"}}},
	}})

	prior := `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model a {
  id   Int    @id
  b_id String
  b    b      @relation(fields: [b_id], references: [id])
  cs   c[]
}

/// keep me
model b {
  id     String @id @default(uuid())
  status Status
  items  a[]
}

model c {
  id   Int @id
  a_id Int
  a    a   @relation(fields: [a_id], references: [id])
}

enum Status {
  active
}
`

	t.Run("filtered tables are kept as authored", func(t *testing.T) {
		var logs bytes.Buffer
		logger := logrus.New()
		logger.SetOutput(&logs)
		logger.SetLevel(logrus.DebugLevel)

		opts := Options{Logger: logger, Selected: func(table string) bool { return table == "a" }}
		got := reconcileText(t, cat, prior, opts)
		assert.Equal(t, prior, got)
		assert.Contains(t, logs.String(), "keeping model, table not selected")
		assert.NotContains(t, logs.String(), "dropping")

		assert.Equal(t, got, reconcileText(t, cat, got, opts))
	})

	t.Run("missing tables are dropped without a filter", func(t *testing.T) {
		got := reconcileText(t, cat, prior, Options{})
		assert.Equal(t, `datasource db {
  provider = "postgresql"
  url      = env("DATABASE_URL")
}

model a {
  id   Int    @id
  b_id String
}
`, got)
	})

	t.Run("links need their columns", func(t *testing.T) {
		narrow := mustCatalog(t, []catalog.Table{{
			Name:        "a",
			Columns:     []catalog.Column{{Name: "id", Type: "int"}},
			Constraints: []catalog.Constraint{&catalog.PrimaryKey{Name: "a_pkey", Columns: []string{"id"}}},
		}})
		got := reconcileText(t, narrow, prior, Options{Selected: func(table string) bool { return table == "a" }})
		assert.Contains(t, got, "model a {\n  id Int @id\n  cs c[]\n}\n")
		assert.Contains(t, got, "/// keep me\nmodel b {\n")
	})
}

func TestDefaultValue(t *testing.T) {
	p := &pass{prior: &dsl.Document{}}
	tests := []struct {
		raw  string
		typ  string
		want string
	}{
		{"((0))", catalog.TypeInt, "0"},
		{"(N'abc')", catalog.TypeString, `"abc"`},
		{"'it''s'::text", catalog.TypeString, `"it's"`},
		{"CURRENT_TIMESTAMP", catalog.TypeDateTime, "now()"},
		{"(getdate())", catalog.TypeDateTime, "now()"},
		{"true", catalog.TypeBoolean, "true"},
		{"((1))", catalog.TypeBoolean, "true"},
		{"'-1.5'::numeric", catalog.TypeDecimal, "-1.5"},
		{"nextval('a_id_seq'::regclass)", catalog.TypeInt, "autoincrement()"},
		{"gen_random_uuid()", catalog.TypeString, `dbgenerated("gen_random_uuid()")`},
		{"(newid())", catalog.TypeString, `dbgenerated("newid()")`},
		{"'{}'::integer[]", catalog.TypeInt, `dbgenerated("'{}'::integer[]")`},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := p.defaultValue(tt.raw, dsl.FieldType{Name: tt.typ})
			assert.Equal(t, tt.want, formatter.FormatExpr(got))
		})
	}
}

func TestNaming(t *testing.T) {
	tests := []struct {
		naming Naming
		table  string
		column string
		model  string
		field  string
	}{
		{NamingPreserve, "users", "created_at", "users", "created_at"},
		{NamingPreserve, "2fa-codes", "first name", "_2fa_codes", "first_name"},
		{NamingPascal, "user_profiles", "created_at", "UserProfile", "createdAt"},
		{NamingPascal, "people", "id", "Person", "id"},
	}
	for _, tt := range tests {
		t.Run(string(tt.naming)+"/"+tt.table, func(t *testing.T) {
			assert.Equal(t, tt.model, tt.naming.modelName(tt.table))
			assert.Equal(t, tt.field, tt.naming.fieldName(tt.column))
		})
	}

	_, err := ParseNaming("kebab")
	assert.Error(t, err)
	n, err := ParseNaming("")
	require.NoError(t, err)
	assert.Equal(t, NamingPreserve, n)
}

func TestLowerInitial(t *testing.T) {
	for in, want := range map[string]string{
		"ID":      "id",
		"UserID":  "userID",
		"URLPath": "urlPath",
		"already": "already",
	} {
		assert.Equal(t, want, lowerInitial(in), in)
	}
}
