package factory

import (
	"errors"
	"strings"

	"github.com/gantryhq/gantry/internal/history"
	"github.com/gantryhq/gantry/internal/history/postgres"
	"github.com/gantryhq/gantry/internal/history/sqlite"
)

// NewSinkFromDSN builds a history sink from a DSN. The scheme selects the
// backend:
//   - postgres:// or postgresql://  -> PostgreSQL
//   - sqlite://, a bare path, or ":memory:" -> SQLite
func NewSinkFromDSN(dsn string) (history.Sink, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty history DSN")
	}
	ld := strings.ToLower(d)
	switch {
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return postgres.New(d)
	default:
		return sqlite.New(d)
	}
}
