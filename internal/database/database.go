package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

// validDBName guards identifiers interpolated into DDL statements.
var validDBName = regexp.MustCompile(`^[A-Za-z0-9_$]+$`)

// Options describes how to reach the MySQL server.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DB wraps the MySQL database connection.
type DB struct {
	*sql.DB
	name string
}

// DSN builds a driver DSN for the configured database. An empty name
// connects at the server level (used by Bootstrap).
func (o Options) DSN(name string) string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", o.Host, o.Port)
	cfg.DBName = name
	cfg.ParseTime = true
	cfg.Collation = "utf8mb4_unicode_ci"
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// New opens a connection pool against the named database.
func New(opts Options) (*DB, error) {
	db, err := sql.Open("mysql", opts.DSN(opts.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Debug().Str("host", opts.Host).Str("database", opts.Name).Msg("Database connection established")

	return &DB{
		DB:   db,
		name: opts.Name,
	}, nil
}

// Name returns the database name this pool is attached to.
func (db *DB) Name() string {
	return db.name
}

// Bootstrap idempotently creates the application database with the required
// character set and collation, then returns the server-side confirmation
// message (selected into a column named Status). Safe to run repeatedly:
// an existing database is a no-op.
func Bootstrap(ctx context.Context, opts Options) (string, error) {
	if !validDBName.MatchString(opts.Name) {
		return "", fmt.Errorf("invalid database name: %q", opts.Name)
	}

	// Server-level connection: the database may not exist yet.
	db, err := sql.Open("mysql", opts.DSN(""))
	if err != nil {
		return "", fmt.Errorf("failed to open server connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return "", fmt.Errorf("failed to reach database server: %w", err)
	}

	stmt := fmt.Sprintf(
		"CREATE DATABASE IF NOT EXISTS %s CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
		opts.Name,
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to create database %s: %w", opts.Name, err)
	}

	var status string
	confirm := fmt.Sprintf("SELECT 'Database %s created successfully!' AS Status", opts.Name)
	if err := db.QueryRowContext(ctx, confirm).Scan(&status); err != nil {
		return "", fmt.Errorf("failed to confirm database creation: %w", err)
	}

	return status, nil
}

// Transaction wraps a function in a database transaction.
func (db *DB) Transaction(fn func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
