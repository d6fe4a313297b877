package store

import (
	"context"
	"database/sql"
	"time"

	"idlwatch/internal/dbopen"
)

// SnapshotExists reports whether a snapshot with the given content hash
// is already recorded for the target. This is the idempotency check a
// monitoring run performs before persisting anything.
func (s *Store) SnapshotExists(ctx context.Context, targetID, contentHash string) (bool, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE target_id = ? AND content_hash = ?`,
		targetID, contentHash).Scan(&n)
	return n > 0, err
}

// CreateSnapshot appends a snapshot, assigning the next version number
// for its target inside a single transaction.
func (s *Store) CreateSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.FetchedAt == 0 {
		snap.FetchedAt = time.Now().UnixMilli()
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT 1 + COALESCE(MAX(version_number), 0) FROM snapshots WHERE target_id = ?`,
			snap.TargetID).Scan(&snap.VersionNumber)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, target_id, content_hash, idl_json, version_number, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.TargetID, snap.ContentHash, snap.IDLJSON,
			snap.VersionNumber, snap.FetchedAt)
		return err
	})
}

// LatestSnapshot returns the highest-version snapshot for a target, or
// nil when the target has never been snapshotted.
func (s *Store) LatestSnapshot(ctx context.Context, targetID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, target_id, content_hash, idl_json, version_number, fetched_at
		FROM snapshots WHERE target_id = ?
		ORDER BY version_number DESC LIMIT 1`, targetID)
	return scanSnapshot(row.Scan)
}

// GetSnapshot retrieves a snapshot by ID, or nil when absent.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, target_id, content_hash, idl_json, version_number, fetched_at
		FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row.Scan)
}

// CountSnapshots returns the number of snapshots recorded for a target.
func (s *Store) CountSnapshots(ctx context.Context, targetID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE target_id = ?`, targetID).Scan(&n)
	return n, err
}

func scanSnapshot(scan func(...any) error) (*Snapshot, error) {
	var sn Snapshot
	err := scan(&sn.ID, &sn.TargetID, &sn.ContentHash, &sn.IDLJSON,
		&sn.VersionNumber, &sn.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sn, nil
}
