// Package testutil holds helpers shared by the service tests.
package testutil

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/jmoiron/sqlx"
)

// noopDriver backs the database handle the service tests run against. It can
// open connections and begin, commit, and roll back transactions, which is all
// the unit-of-work needs; any attempt to run an actual statement fails, so a
// test that reaches the database instead of its stubs fails loudly.
type noopDriver struct{}

func (noopDriver) Open(string) (driver.Conn, error) { return noopConn{}, nil }

type noopConn struct{}

func (noopConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("statements are not supported")
}
func (noopConn) Close() error              { return nil }
func (noopConn) Begin() (driver.Tx, error) { return noopTx{}, nil }

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

var registerOnce sync.Once

// NewDB returns a database handle whose transactions are no-ops.
func NewDB(logger ectologger.Logger) database.DB {
	registerOnce.Do(func() { sql.Register("fern-noop", noopDriver{}) })
	db, err := sql.Open("fern-noop", "")
	if err != nil {
		panic(err)
	}
	return database.NewDatabaseInstance(sqlx.NewDb(db, "postgres"), logger)
}

// NewLogger returns a logger that discards everything.
func NewLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}
