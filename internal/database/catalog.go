// Package database implements the unit catalog: an optional,
// cross-process record of which global identifier id and constant-pool
// offset a previously loaded unit was assigned, keyed by the unit's
// content hash. It is grounded on the teacher's internal/database
// package for its multi-driver connection handling (the same
// driver-name/DSN pair and blank-import set covering sqlite3, MySQL,
// Postgres, and SQL Server), generalized from security-scan bookkeeping
// to loader bookkeeping.
package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/crypto/blake2b"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // registers driver name "sqlite", a cgo-free alternative to "sqlite3"

	"wisp/internal/bytecode"
)

// Statements below are written in SQLite's dialect: "?" placeholders,
// CREATE TABLE IF NOT EXISTS, TEXT primary keys, and INSERT ... ON
// CONFLICT ... DO UPDATE upserts. Every method works against the
// "sqlite3" and "sqlite" drivers. The other registered drivers do not
// accept all of it: MySQL rejects the TEXT primary keys in the schema
// and the ON CONFLICT clause, SQL Server rejects CREATE TABLE IF NOT
// EXISTS, so Open fails against both; against lib/pq Open succeeds but
// PutUnit/PutNames/GetUnit fail on the "?" placeholders.

// Catalog wraps a database/sql handle holding two small tables: one row
// per loaded unit (hash -> global id, const offset) and one row per
// named identifier ever bound (name -> global id), so a fresh process
// can seed its identifier registry before running a REUSE_VAR_STRINGS
// load against a unit a prior process already registered names for.
type Catalog struct {
	db *sql.DB
}

// Open connects to driverName (one of "sqlite3" (cgo), "sqlite" (pure Go,
// via modernc.org/sqlite), "mysql", "postgres", or "sqlserver") using dsn
// and ensures the catalog's schema exists.
func Open(ctx context.Context, driverName, dsn string) (*Catalog, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to catalog database: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS units (
			hash TEXT PRIMARY KEY,
			ident_id INTEGER NOT NULL,
			const_offset INTEGER NOT NULL,
			loaded_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS names (
			name TEXT PRIMARY KEY,
			ident_id INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("preparing catalog schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// ContentHash returns the hex-encoded blake2b-256 digest of data, the
// key units and rows in the catalog are addressed by.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutUnit records that the unit content-hashing to hash was assigned
// identID and constOffset.
func (c *Catalog) PutUnit(ctx context.Context, hash string, identID bytecode.IdentID, constOffset int) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO units (hash, ident_id, const_offset, loaded_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (hash) DO UPDATE SET ident_id = excluded.ident_id, const_offset = excluded.const_offset, loaded_at = excluded.loaded_at`,
		hash, int(identID), constOffset, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording unit %s: %w", hash, err)
	}
	return nil
}

// GetUnit looks up a previously recorded unit by hash.
func (c *Catalog) GetUnit(ctx context.Context, hash string) (identID bytecode.IdentID, constOffset int, ok bool, err error) {
	row := c.db.QueryRowContext(ctx, `SELECT ident_id, const_offset FROM units WHERE hash = ?`, hash)
	var id, offset int
	switch scanErr := row.Scan(&id, &offset); scanErr {
	case nil:
		return bytecode.IdentID(id), offset, true, nil
	case sql.ErrNoRows:
		return 0, 0, false, nil
	default:
		return 0, 0, false, fmt.Errorf("looking up unit %s: %w", hash, scanErr)
	}
}

// PutNames records the global id each name currently resolves to, so a
// later process can seed its registry with the same assignments.
func (c *Catalog) PutNames(ctx context.Context, names map[string]bytecode.IdentID) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning name catalog transaction: %w", err)
	}
	defer tx.Rollback()

	for name, id := range names {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO names (name, ident_id) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET ident_id = excluded.ident_id`,
			name, int(id)); err != nil {
			return fmt.Errorf("recording name %q: %w", name, err)
		}
	}
	return tx.Commit()
}

// LoadNames returns every name -> global id assignment the catalog has
// recorded.
func (c *Catalog) LoadNames(ctx context.Context) (map[string]bytecode.IdentID, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, ident_id FROM names`)
	if err != nil {
		return nil, fmt.Errorf("listing catalog names: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bytecode.IdentID)
	for rows.Next() {
		var name string
		var id int
		if err := rows.Scan(&name, &id); err != nil {
			return nil, fmt.Errorf("scanning catalog name row: %w", err)
		}
		out[name] = bytecode.IdentID(id)
	}
	return out, rows.Err()
}

// Summary renders a human-friendly one-line description of how many
// units and names the catalog currently holds, in the byte/row-count
// formatting style the teacher's own logging uses.
func (c *Catalog) Summary(ctx context.Context) (string, error) {
	var units, names int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&units); err != nil {
		return "", err
	}
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM names`).Scan(&names); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s units, %s names", humanize.Comma(int64(units)), humanize.Comma(int64(names))), nil
}
