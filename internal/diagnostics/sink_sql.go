package diagnostics

import (
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb" // sqlserver driver
	_ "github.com/go-sql-driver/mysql"   // mysql driver
	_ "github.com/lib/pq"                // postgres driver
	_ "modernc.org/sqlite"               // sqlite driver, pure Go

	"github.com/pkg/errors"
)

// SQLSink persists Records into a SQL table, dispatching on driver the same
// way the teacher's DatabaseModule dispatches sql_connect by dbType.
type SQLSink struct {
	db     *sql.DB
	driver string
}

// driverNames maps a Cx diagnostics driver name to the database/sql driver
// name registered by the matching blank import above.
var driverNames = map[string]string{
	"sqlite":    "sqlite",
	"mysql":     "mysql",
	"postgres":  "postgres",
	"sqlserver": "sqlserver",
}

// NewSQLSink opens a diagnostics table reached via dsn using driver and
// creates the table if it does not exist, for every driver. driver must be one of "sqlite", "mysql",
// "postgres", "sqlserver".
func NewSQLSink(driver, dsn string) (*SQLSink, error) {
	sqlDriver, ok := driverNames[driver]
	if !ok {
		return nil, errors.Errorf("diagnostics: unknown sink driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "diagnostics: open %s sink", driver)
	}
	s := &SQLSink{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS cx_diagnostics (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		code INTEGER NOT NULL,
		message TEXT NOT NULL,
		line INTEGER NOT NULL
	)`)
	return errors.Wrap(err, "diagnostics: migrate sink schema")
}

// Record inserts rec into the sink's table.
func (s *SQLSink) Record(rec Record) error {
	_, err := s.db.Exec(
		s.insertStmt(),
		rec.ID.String(), rec.Kind, rec.Code, rec.Message, rec.Line,
	)
	return errors.Wrap(err, "diagnostics: record")
}

func (s *SQLSink) insertStmt() string {
	switch s.driver {
	case "postgres":
		return `INSERT INTO cx_diagnostics (id, kind, code, message, line) VALUES ($1, $2, $3, $4, $5)`
	case "sqlserver":
		return `INSERT INTO cx_diagnostics (id, kind, code, message, line) VALUES (@p1, @p2, @p3, @p4, @p5)`
	default:
		return `INSERT INTO cx_diagnostics (id, kind, code, message, line) VALUES (?, ?, ?, ?, ?)`
	}
}

// Close releases the underlying database handle.
func (s *SQLSink) Close() error {
	return s.db.Close()
}

func (s *SQLSink) String() string {
	return fmt.Sprintf("diagnostics.SQLSink(%s)", s.driver)
}
