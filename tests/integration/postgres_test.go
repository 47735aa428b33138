//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/reintrospect"
	"github.com/tordrt/reintrospect/internal/catalog"
	"github.com/tordrt/reintrospect/internal/db"
)

const postgresSchema = "reintrospect_it"

// createPostgresShop creates the shop fixture in its own schema and drops
// the schema when the test ends.
func createPostgresShop(t *testing.T, ctx context.Context, url string) {
	t.Helper()

	client, err := db.NewPostgresClient(ctx, url)
	require.NoError(t, err)
	defer client.Close(ctx)

	conn := client.GetConnection()
	for _, stmt := range []string{
		`DROP SCHEMA IF EXISTS ` + postgresSchema + ` CASCADE`,
		`CREATE SCHEMA ` + postgresSchema,
		`CREATE TYPE ` + postgresSchema + `.user_status AS ENUM ('active', 'banned')`,
		`CREATE TABLE ` + postgresSchema + `.users (
			id integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
			email varchar(255) NOT NULL UNIQUE,
			status ` + postgresSchema + `.user_status NOT NULL DEFAULT 'active',
			tags text[],
			created_at timestamp(3) with time zone NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE ` + postgresSchema + `.orders (
			id serial PRIMARY KEY,
			user_id integer NOT NULL REFERENCES ` + postgresSchema + `.users(id) ON DELETE CASCADE,
			total numeric(10, 2) NOT NULL
		)`,
		`CREATE INDEX idx_orders_user_id ON ` + postgresSchema + `.orders(user_id)`,
	} {
		_, err := conn.Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	t.Cleanup(func() {
		cleanup, err := db.NewPostgresClient(context.Background(), url)
		if err != nil {
			return
		}
		defer cleanup.Close(context.Background())
		_, _ = cleanup.GetConnection().Exec(context.Background(), `DROP SCHEMA IF EXISTS `+postgresSchema+` CASCADE`)
	})
}

func TestPostgresExtraction(t *testing.T) {
	ctx := context.Background()
	url := databaseURL(t, "REINTROSPECT_POSTGRES_URL")
	createPostgresShop(t, ctx, url)

	client, err := db.NewPostgresClient(ctx, url)
	require.NoError(t, err)
	defer client.Close(ctx)

	cat, err := db.NewPostgresExtractor(client, postgresSchema).ExtractCatalog(ctx, db.TableFilter{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"users", "orders"}, tableNames(cat))
	verifyShop(t, cat, "users", "orders", "idx_orders_user_id")
	assert.True(t, cat.Table("orders").Column("id").AutoIncrement, "serial columns are generated")

	users := cat.Table("users")
	assert.Equal(t, "user_status", users.Column("status").Enum)
	assert.Equal(t, "varchar(255)", users.Column("email").Type)
	assert.Equal(t, "timestamptz(3)", users.Column("created_at").Type)
	assert.True(t, users.Column("tags").Array)
	assert.Equal(t, "numeric(10,2)", cat.Table("orders").Column("total").Type)

	status, ok := cat.Enum("user_status")
	require.True(t, ok)
	assert.Equal(t, catalog.Enum{Name: "user_status", Values: []string{"active", "banned"}}, status)
}

func TestPostgresSpecificTables(t *testing.T) {
	ctx := context.Background()
	url := databaseURL(t, "REINTROSPECT_POSTGRES_URL")
	createPostgresShop(t, ctx, url)

	cat, err := reintrospect.ExtractCatalog(ctx, "postgresql", url, &reintrospect.Options{
		SchemaName: postgresSchema,
		Tables:     []string{"users"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, tableNames(cat))
}

func TestPostgresReintrospect(t *testing.T) {
	ctx := context.Background()
	url := databaseURL(t, "REINTROSPECT_POSTGRES_URL")
	createPostgresShop(t, ctx, url)

	prior := `datasource db {
  provider = "postgresql"
  url      = env("REINTROSPECT_POSTGRES_URL")
}

model Customer {
  id    Int    @id @default(autoincrement())
  email String @unique @db.VarChar(255)

  @@map("users")
}
`

	out := reintrospectTwice(t, ctx, prior, &reintrospect.Options{SchemaName: postgresSchema})
	assert.Contains(t, out, "model Customer {\n")
	assert.Contains(t, out, `@@map("users")`)
	assert.Contains(t, out, "model orders {\n")
	assert.Contains(t, out, "enum user_status {\n  active\n  banned\n}\n")
}
