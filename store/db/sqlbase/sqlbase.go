// Package sqlbase holds the SQL shared by the postgres and sqlite drivers.
// The dialects differ only in placeholder syntax and connection setup.
package sqlbase

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders PostgreSQL placeholders ($1, $2, ...).
func Dollar(n int) string {
	return fmt.Sprintf("$%d", n)
}

// Question renders SQLite placeholders (?).
func Question(int) string {
	return "?"
}

// DB implements the data methods of store.Driver.
type DB struct {
	db  *sql.DB
	ph  Placeholder
	now func() time.Time
}

// New wraps an open database.
func New(db *sql.DB, ph Placeholder) *DB {
	return &DB{db: db, ph: ph, now: time.Now}
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// args accumulates bind values and hands out matching placeholders.
type args struct {
	ph     Placeholder
	values []any
}

func (a *args) add(v any) string {
	a.values = append(a.values, v)
	return a.ph(len(a.values))
}

func (d *DB) newArgs() *args {
	return &args{ph: d.ph}
}

func joinWhere(where []string) string {
	if len(where) == 0 {
		return "1 = 1"
	}
	return strings.Join(where, " AND ")
}
