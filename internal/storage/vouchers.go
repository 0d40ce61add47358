package storage

import (
	"context"
	"fmt"

	"github.com/mailvoucher/mailvoucher/internal/service"
)

// RecordVoucher appends one row to the local submission log.
func (s *SQLiteStorage) RecordVoucher(ctx context.Context, rec service.VoucherRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(rec.EmailID, "rec.EmailID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vouchers (email_id, description, series, number, voucher_date)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.EmailID, rec.Description, rec.Series, rec.Number, rec.Date)
	if err != nil {
		return fmt.Errorf("failed to record voucher: %w", err)
	}
	return nil
}

// Vouchers returns the submission log, newest first.
func (s *SQLiteStorage) Vouchers(ctx context.Context) ([]service.VoucherRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT email_id, description, series, COALESCE(number, ''), voucher_date, created_at
		 FROM vouchers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vouchers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []service.VoucherRecord
	for rows.Next() {
		var rec service.VoucherRecord
		if err := rows.Scan(&rec.EmailID, &rec.Description, &rec.Series, &rec.Number, &rec.Date, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
