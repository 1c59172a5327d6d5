package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Supported db_query drivers
const (
	DriverMySQL   = "mysql"
	DriverSQLite3 = "sqlite3"
)

// Row is one result row keyed by column name.
type Row = map[string]interface{}

// Querier runs a db_query step.
type Querier interface {
	Query(ctx context.Context, query, database string) ([]Row, error)
}

// SQLQuerier opens a fresh connection for every query and closes it before
// returning. There is no pooling between steps.
type SQLQuerier struct {
	Driver          string
	DSN             string
	DefaultDatabase string
}

// NewQuerier creates a querier for driver and dsn.
func NewQuerier(driver, dsn, defaultDatabase string) (*SQLQuerier, error) {
	switch driver {
	case DriverMySQL, DriverSQLite3:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	return &SQLQuerier{Driver: driver, DSN: dsn, DefaultDatabase: defaultDatabase}, nil
}

// dsnFor returns the connection string targeting database. For mysql the
// schema in the DSN is replaced; for sqlite3 a database names another file.
func (q *SQLQuerier) dsnFor(database string) (string, error) {
	if database == "" {
		database = q.DefaultDatabase
	}
	if database == "" {
		return q.DSN, nil
	}

	switch q.Driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(q.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg.DBName = database
		return cfg.FormatDSN(), nil
	default:
		return database, nil
	}
}

// Query runs query and returns every row. Zero rows is an empty, non-nil
// slice. Byte columns are returned as strings.
func (q *SQLQuerier) Query(ctx context.Context, query, database string) ([]Row, error) {
	dsn, err := q.dsnFor(database)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("no database configured for driver %s", q.Driver)
	}

	conn, err := sql.Open(q.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()
	conn.SetMaxOpenConns(1)

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := []Row{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return result, nil
}
