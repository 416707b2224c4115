// Package query serves read-only, multi-tenant lookups over the projected
// read models. Every statement is scoped by instance_id; cross-instance
// reads are not expressible through this package.
package query

import (
	"database/sql"

	"github.com/rs/zerolog"
)

// Queries is the query layer over the shared database handle.
type Queries struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates the query layer.
func New(db *sql.DB, logger zerolog.Logger) *Queries {
	return &Queries{db: db, logger: logger.With().Str("component", "query").Logger()}
}
