//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/reintrospect"
	"github.com/tordrt/reintrospect/internal/catalog"
)

// databaseURL returns the URL in the named variable or skips the test.
func databaseURL(t *testing.T, name string) string {
	t.Helper()
	url := os.Getenv(name)
	if url == "" {
		t.Skipf("%s is not set", name)
	}
	return url
}

// execAll runs the statements one by one; not every driver accepts a batch.
func execAll(t *testing.T, ctx context.Context, conn *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := conn.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
}

// verifyShop checks the users/orders fixture every provider creates:
// users(id, email unique) and orders(id, user_id -> users ON DELETE CASCADE)
// with a plain index on orders(user_id).
func verifyShop(t *testing.T, cat *catalog.Catalog, users, orders, ordersIndex string) {
	t.Helper()

	u := cat.Table(users)
	require.NotNil(t, u, "table %s", users)
	o := cat.Table(orders)
	require.NotNil(t, o, "table %s", orders)

	verifyColumns(t, u, "id", "email")
	verifyColumns(t, o, "id", "user_id", "total")

	require.NotNil(t, u.PrimaryKey())
	assert.Equal(t, []string{"id"}, u.PrimaryKey().Columns)
	assert.True(t, u.Column("id").AutoIncrement, "users.id is generated")
	assert.False(t, u.Column("email").Nullable)
	assert.True(t, cat.IsUnique(users, []string{"email"}), "users.email is unique")

	fk := cat.ForeignKey(orders, []string{"user_id"}, users)
	require.NotNil(t, fk, "orders.user_id references users")
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.Equal(t, catalog.Cascade, fk.OnDelete)

	verifyIndex(t, o, ordersIndex, "user_id")
}

func verifyColumns(t *testing.T, table *catalog.Table, columns ...string) {
	t.Helper()
	for _, name := range columns {
		assert.NotNil(t, table.Column(name), "column %s.%s", table.Name, name)
	}
}

func verifyIndex(t *testing.T, table *catalog.Table, name string, columns ...string) {
	t.Helper()
	for _, idx := range table.Indexes {
		if idx.Name == name {
			assert.Equal(t, columns, idx.Columns)
			return
		}
	}
	t.Errorf("index %s not found on %s", name, table.Name)
}

func tableNames(cat *catalog.Catalog) []string {
	var names []string
	for _, table := range cat.Tables() {
		names = append(names, table.Name)
	}
	return names
}

// reintrospectTwice runs src through the database twice and checks that
// the second run reproduces the first.
func reintrospectTwice(t *testing.T, ctx context.Context, src string, opts *reintrospect.Options) string {
	t.Helper()

	first, err := reintrospect.ReintrospectSource(ctx, []byte(src), opts)
	require.NoError(t, err)

	second, err := reintrospect.ReintrospectSource(ctx, []byte(first), opts)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-introspection must be idempotent")
	return first
}
