// Package journal records resolved submission attempts in SQL.  The default
// driver is go-sql-driver/mysql, which also works with MariaDB when the DSN
// carries parseTime=true.
//
// Public entry points:
//
//	Open(dsn)                          – quick helper with conservative pool sizes.
//	OpenWithOptions(dsn, maxOpen, maxIdle) – fine-grained control.
//	NewStore(db)                       – wraps an open *sqlx.DB.
//
// Both Open helpers Ping the database before returning so callers can fail
// fast during bootstrap.  Callers should Close() the returned *sqlx.DB when
// no longer needed.
package journal

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Open returns a *sqlx.DB with a small pool (5 open, 2 idle) and a
// 30-minute connection lifetime.  Journal writes are tiny and infrequent.
func Open(dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(dsn, 5, 2)
}

// OpenWithOptions lets callers tune maxOpen and maxIdle.
func OpenWithOptions(dsn string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	return db, nil
}
