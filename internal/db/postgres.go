package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DefaultPostgresSchema is used when the connection URL names no schema.
const DefaultPostgresSchema = "public"

// PostgresClient manages the connection to PostgreSQL
type PostgresClient struct {
	conn   *pgx.Conn
	schema string
}

// ParsePostgresURL parses a connection URL. The schema query parameter
// selects the introspected schema; it is not a server setting, so it is
// removed from the runtime parameters.
func ParsePostgresURL(connString string) (*pgx.ConnConfig, string, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse connection string: %w", err)
	}
	schema := DefaultPostgresSchema
	if s, ok := cfg.RuntimeParams["schema"]; ok {
		if s != "" {
			schema = s
		}
		delete(cfg.RuntimeParams, "schema")
	}
	return cfg, schema, nil
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	cfg, schema, err := ParsePostgresURL(connString)
	if err != nil {
		return nil, err
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{conn: conn, schema: schema}, nil
}

// Close closes the database connection
func (c *PostgresClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// GetConnection returns the underlying connection
func (c *PostgresClient) GetConnection() *pgx.Conn {
	return c.conn
}

// Schema returns the schema named by the connection URL.
func (c *PostgresClient) Schema() string {
	return c.schema
}
