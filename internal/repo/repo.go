package repo

import (
	"database/sql"

	"github.com/xxxsen/dsforge/internal/db"
	"github.com/xxxsen/dsforge/internal/pkg/dbutil"
)

// conn pairs the pool with its driver so every query is rebound once before execution.
type conn struct {
	db     *sql.DB
	driver string
}

func newConn(d *db.DB) conn {
	return conn{db: d.DB, driver: d.Driver}
}

func (c conn) finalize(query string, args []interface{}) (string, []interface{}) {
	return dbutil.Finalize(c.driver, query, args)
}

func intFromBool(value bool) int {
	if value {
		return 1
	}
	return 0
}
