//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/reintrospect"
	"github.com/tordrt/reintrospect/internal/db"
)

func createMySQLShop(t *testing.T, ctx context.Context, url string) *db.MySQLClient {
	t.Helper()

	dsn, err := db.MySQLDSN(url)
	require.NoError(t, err)
	client, err := db.NewMySQLClient(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		execAll(t, context.Background(), client.GetDB(), `DROP TABLE IF EXISTS it_orders`, `DROP TABLE IF EXISTS it_users`)
		_ = client.Close()
	})

	execAll(t, ctx, client.GetDB(),
		`DROP TABLE IF EXISTS it_orders`,
		`DROP TABLE IF EXISTS it_users`,
		`CREATE TABLE it_users (
			id INT AUTO_INCREMENT PRIMARY KEY,
			email VARCHAR(255) NOT NULL,
			status ENUM('active', 'banned') NOT NULL DEFAULT 'active',
			created_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			UNIQUE KEY it_users_email_key (email)
		)`,
		`CREATE TABLE it_orders (
			id INT AUTO_INCREMENT PRIMARY KEY,
			user_id INT NOT NULL,
			total DECIMAL(10, 2) NOT NULL DEFAULT 0.00,
			KEY idx_it_orders_user_id (user_id),
			CONSTRAINT it_orders_user_id_fkey FOREIGN KEY (user_id) REFERENCES it_users (id) ON DELETE CASCADE
		)`,
	)
	return client
}

func TestMySQLExtraction(t *testing.T) {
	ctx := context.Background()
	url := databaseURL(t, "REINTROSPECT_MYSQL_URL")
	client := createMySQLShop(t, ctx, url)

	cat, err := db.NewMySQLExtractor(client, "").ExtractCatalog(ctx, db.TableFilter{Tables: []string{"it_users", "it_orders"}})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"it_users", "it_orders"}, tableNames(cat))
	verifyShop(t, cat, "it_users", "it_orders", "idx_it_orders_user_id")

	status := cat.Table("it_users").Column("status")
	require.NotNil(t, status)
	assert.Equal(t, "it_users_status", status.Enum)
	require.NotNil(t, status.Default)
	assert.Equal(t, "'active'", *status.Default)

	values, ok := cat.Enum("it_users_status")
	require.True(t, ok)
	assert.Equal(t, []string{"active", "banned"}, values.Values)
}

func TestMySQLSpecificTables(t *testing.T) {
	ctx := context.Background()
	url := databaseURL(t, "REINTROSPECT_MYSQL_URL")
	createMySQLShop(t, ctx, url)

	cat, err := reintrospect.ExtractCatalog(ctx, "mysql", url, &reintrospect.Options{Tables: []string{"it_orders"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"it_orders"}, tableNames(cat))
	assert.Empty(t, cat.Table("it_orders").ForeignKeys())
}

func TestMySQLReintrospect(t *testing.T) {
	ctx := context.Background()
	url := databaseURL(t, "REINTROSPECT_MYSQL_URL")
	createMySQLShop(t, ctx, url)

	prior := `datasource db {
  provider     = "mysql"
  url          = env("REINTROSPECT_MYSQL_URL")
  relationMode = "prisma"
}
`

	out := reintrospectTwice(t, ctx, prior, &reintrospect.Options{
		Tables: []string{"it_users", "it_orders"},
		Naming: "pascal",
	})
	assert.Contains(t, out, "model ItUser {\n")
	assert.Contains(t, out, `@@map("it_users")`)
	assert.Contains(t, out, "model ItOrder {\n")
	assert.Contains(t, out, "enum ItUsersStatus {\n")
}
