package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQLDSN translates a mysql:// URL into a driver DSN. Strings that are
// already driver DSNs (user:pass@tcp(host:port)/db) are returned as they are.
func MySQLDSN(raw string) (string, error) {
	rest := strings.TrimPrefix(raw, "mysql://")
	if strings.Contains(rest, "@tcp(") || strings.Contains(rest, "@unix(") || !strings.HasPrefix(raw, "mysql://") {
		if _, err := mysql.ParseDSN(rest); err != nil {
			return "", fmt.Errorf("invalid MySQL connection string: %w", err)
		}
		return rest, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid MySQL connection string: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Hostname() + ":3306"
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	for k, v := range u.Query() {
		switch k {
		case "connection_limit", "pool_timeout", "connect_timeout", "socket_timeout", "sslaccept", "sslcert", "sslidentity", "sslpassword":
			// client pool settings of the schema tooling
		case "socket":
			cfg.Net = "unix"
			cfg.Addr = v[0]
		default:
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[k] = v[0]
		}
	}
	return cfg.FormatDSN(), nil
}

// SQLitePath returns the database path of a file: or sqlite:// URL.
func SQLitePath(raw string) string {
	path := raw
	for _, prefix := range []string{"sqlite://", "file://", "file:"} {
		if strings.HasPrefix(path, prefix) {
			path = strings.TrimPrefix(path, prefix)
			break
		}
	}
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return path
}

// SQLServerDSN translates a JDBC-style connection string
// (sqlserver://host:port;database=db;user=sa;password=secret) into a
// driver URL. Driver URLs are returned as they are.
func SQLServerDSN(raw string) (string, error) {
	rest := strings.TrimPrefix(raw, "sqlserver://")
	if rest == raw {
		return "", fmt.Errorf("invalid SQL Server connection string: missing sqlserver:// scheme")
	}
	if !strings.Contains(rest, ";") {
		return raw, nil
	}

	parts := splitParams(rest)
	u := &url.URL{Scheme: "sqlserver", Host: parts[0]}
	q := url.Values{}
	var user, password string
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return "", fmt.Errorf("invalid SQL Server connection string: parameter %q has no value", part)
		}
		v = unbrace(v)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "user", "username", "uid", "userid", "user id":
			user = v
		case "password", "pwd":
			password = v
		case "database", "initial catalog":
			q.Set("database", v)
		case "schema":
			q.Set("schema", v)
		case "connectionlimit", "pooltimeout", "isolationlevel":
			// client pool settings of the schema tooling
		default:
			q.Set(strings.TrimSpace(k), v)
		}
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// splitParams splits on semicolons outside of {curly braces}.
func splitParams(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ';':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// unbrace removes the {curly braces} that escape special characters in
// connection string values.
func unbrace(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '{' && v[len(v)-1] == '}' {
		return v[1 : len(v)-1]
	}
	return v
}
