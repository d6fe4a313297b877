package store

import (
	"context"
	"database/sql"
	"time"
)

// InsertTarget adds a target to the watch roster.
func (s *Store) InsertTarget(ctx context.Context, t *Target) error {
	now := time.Now().UnixMilli()
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = now
	}
	if t.LastStatus == "" {
		t.LastStatus = "pending"
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO targets (id, name, address, enabled, last_checked_at,
		last_status, last_error, fail_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Address, t.Enabled, t.LastCheckedAt,
		t.LastStatus, t.LastError, t.FailCount, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetTarget retrieves a target by ID, or nil when absent.
func (s *Store) GetTarget(ctx context.Context, id string) (*Target, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, address, enabled, last_checked_at,
		last_status, last_error, fail_count, created_at, updated_at
		FROM targets WHERE id = ?`, id)
	return scanTarget(row.Scan)
}

// ListTargets returns every target, newest first.
func (s *Store) ListTargets(ctx context.Context) ([]*Target, error) {
	return s.queryTargets(ctx,
		`SELECT id, name, address, enabled, last_checked_at,
		last_status, last_error, fail_count, created_at, updated_at
		FROM targets ORDER BY created_at DESC`)
}

// ListActiveTargets returns the enabled targets in insertion order.
// This is the set one monitoring run iterates over.
func (s *Store) ListActiveTargets(ctx context.Context) ([]*Target, error) {
	return s.queryTargets(ctx,
		`SELECT id, name, address, enabled, last_checked_at,
		last_status, last_error, fail_count, created_at, updated_at
		FROM targets WHERE enabled = 1 ORDER BY created_at ASC`)
}

// RecordCheckOK marks a target as checked with a new snapshot created.
func (s *Store) RecordCheckOK(ctx context.Context, id string) error {
	return s.recordCheck(ctx, id, "ok", "", true)
}

// RecordCheckUnchanged marks a target as checked with no content change.
func (s *Store) RecordCheckUnchanged(ctx context.Context, id string) error {
	return s.recordCheck(ctx, id, "unchanged", "", true)
}

// RecordCheckNotFound marks a target whose definition account is
// confirmed absent on chain.
func (s *Store) RecordCheckNotFound(ctx context.Context, id string) error {
	return s.recordCheck(ctx, id, "not_found", "", true)
}

// RecordCheckError marks a failed check and increments the failure count.
func (s *Store) RecordCheckError(ctx context.Context, id string, checkErr error) error {
	msg := ""
	if checkErr != nil {
		msg = checkErr.Error()
	}
	return s.recordCheck(ctx, id, "error", msg, false)
}

func (s *Store) recordCheck(ctx context.Context, id, status, errMsg string, resetFails bool) error {
	now := time.Now().UnixMilli()
	if resetFails {
		_, err := s.DB.ExecContext(ctx,
			`UPDATE targets SET last_checked_at=?, last_status=?, last_error='',
			fail_count=0, updated_at=? WHERE id=?`, now, status, now, id)
		return err
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE targets SET last_checked_at=?, last_status=?, last_error=?,
		fail_count=fail_count+1, updated_at=? WHERE id=?`, now, status, errMsg, now, id)
	return err
}

func (s *Store) queryTargets(ctx context.Context, query string, args ...any) ([]*Target, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		t, err := scanTarget(rows.Scan)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func scanTarget(scan func(...any) error) (*Target, error) {
	var t Target
	err := scan(&t.ID, &t.Name, &t.Address, &t.Enabled, &t.LastCheckedAt,
		&t.LastStatus, &t.LastError, &t.FailCount, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
