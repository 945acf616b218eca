package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog serves lookups from a SQLite file, so fixtures larger than the
// built-in set can be shared between test runs.
type SQLiteCatalog struct {
	db *sql.DB
}

// lookup columns, keyed by format; never built from caller input.
var columns = map[string]string{
	FormatName:     "name",
	FormatInChI:    "inchi",
	FormatInChIKey: "inchikey",
	FormatSMILES:   "smiles",
	FormatFormula:  "formula",
}

// OpenSQLite opens (and creates if needed) the catalog database at path and ensures
// the molecules table exists. A new, empty database is seeded with Fixture().
func OpenSQLite(ctx context.Context, path string) (*SQLiteCatalog, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	c := &SQLiteCatalog{db: db}
	if err := c.bootstrap(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCatalog) bootstrap(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS molecules (
  name     TEXT NOT NULL,
  inchi    TEXT NOT NULL UNIQUE,
  inchikey TEXT,
  smiles   TEXT,
  formula  TEXT,
  mass     REAL
);`,
		`CREATE INDEX IF NOT EXISTS molecules_name ON molecules(name);`,
		`CREATE INDEX IF NOT EXISTS molecules_inchikey ON molecules(inchikey);`,
		`CREATE INDEX IF NOT EXISTS molecules_smiles ON molecules(smiles);`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap catalog: %w", err)
		}
	}

	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM molecules").Scan(&n); err != nil {
		return fmt.Errorf("count molecules: %w", err)
	}
	if n == 0 {
		for _, m := range Fixture() {
			if err := c.Put(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// Put inserts or replaces m, keyed by InChI.
func (c *SQLiteCatalog) Put(ctx context.Context, m Molecule) error {
	_, err := c.db.ExecContext(ctx, `
INSERT INTO molecules(name, inchi, inchikey, smiles, formula, mass) VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(inchi) DO UPDATE SET name=excluded.name, inchikey=excluded.inchikey,
  smiles=excluded.smiles, formula=excluded.formula, mass=excluded.mass`,
		m.Name, m.InChI, m.InChIKey, m.SMILES, m.Formula, m.Mass)
	if err != nil {
		return fmt.Errorf("put molecule %q: %w", m.Name, err)
	}
	return nil
}

func (c *SQLiteCatalog) Lookup(ctx context.Context, identifier, format string) (*Molecule, error) {
	col, ok := columns[NormalizeFormat(format)]
	if !ok {
		return nil, ErrUnknownFormat
	}
	row := c.db.QueryRowContext(ctx,
		"SELECT name, inchi, COALESCE(inchikey,''), COALESCE(smiles,''), COALESCE(formula,''), COALESCE(mass,0) FROM molecules WHERE "+col+" = ? LIMIT 1",
		identifier)

	var m Molecule
	if err := row.Scan(&m.Name, &m.InChI, &m.InChIKey, &m.SMILES, &m.Formula, &m.Mass); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup %s %q: %w", col, identifier, err)
	}
	return &m, nil
}

func (c *SQLiteCatalog) ByInChI(ctx context.Context, inchi string) (*Molecule, error) {
	return c.Lookup(ctx, inchi, FormatInChI)
}

func (c *SQLiteCatalog) Close() error { return c.db.Close() }
