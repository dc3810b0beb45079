// Package hana talks to an SAP HANA instance: catalog queries for topology
// discovery and the BACKUP statements implementing the storage snapshot
// protocol.
package hana

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"

	_ "github.com/SAP/go-hdb/driver"
	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

// SystemDBPortSuffix is the fixed SQL port suffix of the system database on
// a multi-tenant (MDC) installation.
const SystemDBPortSuffix = "13"

// Database executes SQL statements and returns tabular results. *Client
// implements it; tests substitute fakes.
type Database interface {
	Query(ctx context.Context, stmt string) ([][]string, error)
	Exec(ctx context.Context, stmt string) error
}

// Client is a Database backed by the go-hdb driver. The SQL port is derived
// from the instance number and a two digit suffix (3<instance><suffix>).
type Client struct {
	host string
	port string
	db   *sql.DB
}

// NewClient opens a connection pool against host:3<instance><suffix>.
// The connection is established lazily on first use.
func NewClient(host, instance, suffix, user, password string) (*Client, error) {
	port := "3" + instance + suffix

	dsn := url.URL{
		Scheme: "hdb",
		User:   url.UserPassword(user, password),
		Host:   host + ":" + port,
	}

	db, err := sql.Open("hdb", dsn.String())
	if err != nil {
		return nil, errors.WithKind(errors.KindConnectivity, err)
	}

	slog.Info("hana_client_init", "host", host, "port", port)
	return &Client{host: host, port: port, db: db}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// Query runs a statement and returns every row as a slice of column values
// rendered as strings. Numeric columns are converted by database/sql.
func (c *Client) Query(ctx context.Context, stmt string) ([][]string, error) {
	rows, err := c.db.QueryContext(ctx, stmt)
	if err != nil {
		slog.Error("hana_query_failed", "host", c.host, "error", err)
		return nil, errors.WithKind(errors.KindConnectivity, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read columns")
	}

	var out [][]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithKind(errors.KindConnectivity, err)
	}
	return out, nil
}

// Exec runs a statement that returns no result set.
func (c *Client) Exec(ctx context.Context, stmt string) error {
	if _, err := c.db.ExecContext(ctx, stmt); err != nil {
		slog.Error("hana_exec_failed", "host", c.host, "error", err)
		return errors.WithKind(errors.KindConnectivity, err)
	}
	return nil
}
