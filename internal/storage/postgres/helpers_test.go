// Package postgres provides the PostgreSQL implementation of the record store.
// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every table. It is intended for use
// in tests only; it is defined in the postgres package (not the _test
// package) so it has access to the unexported db field.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE TABLE records, devices, device_category_counts,
			file_index, chat_threads, chat_messages, discoveries
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
