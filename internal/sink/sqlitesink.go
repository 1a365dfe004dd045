package sink

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/next-exp/tpx3pipe/internal/extract"
)

// SQLiteSink writes neutrons into a local SQLite file, a pure-Go
// alternative to the MySQL run database for offline analysis.
type SQLiteSink struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewSQLiteSink opens (creating if absent) filename and ensures the
// neutrons table exists.
func NewSQLiteSink(filename string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}

	const createTable = `CREATE TABLE IF NOT EXISTS neutrons (
		x REAL NOT NULL,
		y REAL NOT NULL,
		tof INTEGER NOT NULL,
		tot INTEGER NOT NULL,
		n_hits INTEGER NOT NULL,
		chip_id INTEGER NOT NULL
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, &ErrCreateTable{TableName: "neutrons", Err: err}
	}

	stmt, err := db.Prepare(`INSERT INTO neutrons (x, y, tof, tot, n_hits, chip_id) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sink: preparing insert statement: %w", err)
	}

	return &SQLiteSink{db: db, stmt: stmt}, nil
}

func (s *SQLiteSink) WriteBatch(batch []extract.Neutron) error {
	for _, n := range batch {
		if _, err := s.stmt.Exec(n.X, n.Y, n.ToF, n.ToT, n.NHits, n.ChipID); err != nil {
			return fmt.Errorf("sink: inserting neutron row: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	stmtErr := s.stmt.Close()
	dbErr := s.db.Close()
	if stmtErr != nil || dbErr != nil {
		return fmt.Errorf("sink: closing sqlite sink: stmt=%v db=%v", stmtErr, dbErr)
	}
	return nil
}

// ErrCreateTable mirrors the teacher's named-error-struct idiom (pkg/errors.go).
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}
