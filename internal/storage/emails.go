package storage

import (
	"context"
	"fmt"
)

// ProcessedIDs returns every message ID that has been filed as a voucher
// (or confirmed in dry-run mode), oldest first.
func (s *SQLiteStorage) ProcessedIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT email_id FROM processed_emails ORDER BY processed_at`)
}

// MarkProcessed records a message ID as processed. Re-marking an already
// processed ID is a no-op; the append is transactional, which preserves
// at-most-once semantics even if a second run is ever started.
func (s *SQLiteStorage) MarkProcessed(ctx context.Context, emailID string) error {
	return s.insertID(ctx, "processed_emails", emailID)
}

// IgnoredIDs returns every message ID the operator chose to skip
// permanently, oldest first.
func (s *SQLiteStorage) IgnoredIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT email_id FROM ignored_emails ORDER BY ignored_at`)
}

// MarkIgnored records a message ID as ignored.
func (s *SQLiteStorage) MarkIgnored(ctx context.Context, emailID string) error {
	return s.insertID(ctx, "ignored_emails", emailID)
}

func (s *SQLiteStorage) queryIDs(ctx context.Context, query string) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query email IDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan email ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStorage) insertID(ctx context.Context, table, emailID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(emailID, "emailID"); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (email_id) VALUES (?)`, table)
	if _, err := s.db.ExecContext(ctx, query, emailID); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}
