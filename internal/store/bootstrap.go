package store

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Bootstrap creates the rule and event tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}

	var count int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _rules").Scan(&count); err != nil {
		return fmt.Errorf("count rules: %w", err)
	}
	if count == 0 {
		log.Warn("rule catalog is empty; create rules via /api/_admin/rules")
	}
	return nil
}
