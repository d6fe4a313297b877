package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const changeColumns = `id, target_id, old_snapshot_id, new_snapshot_id,
	change_type, severity, summary, detail_json, detected_at,
	webhook_notified, webhook_notified_at, telegram_notified, telegram_notified_at`

// InsertChange records a detected change. New records start pending on
// every channel.
func (s *Store) InsertChange(ctx context.Context, c *ChangeRecord) error {
	if c.DetectedAt == 0 {
		c.DetectedAt = time.Now().UnixMilli()
	}
	if c.DetailJSON == "" {
		c.DetailJSON = "{}"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO changes (id, target_id, old_snapshot_id, new_snapshot_id,
		change_type, severity, summary, detail_json, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TargetID, c.OldSnapshotID, c.NewSnapshotID,
		c.ChangeType, c.Severity, c.Summary, c.DetailJSON, c.DetectedAt,
	)
	return err
}

// PendingChanges returns the changes not yet delivered on the given
// channel, oldest first.
func (s *Store) PendingChanges(ctx context.Context, channel string) ([]*ChangeRecord, error) {
	col, err := notifiedColumn(channel)
	if err != nil {
		return nil, err
	}
	return s.queryChanges(ctx, fmt.Sprintf(
		`SELECT %s FROM changes WHERE %s = 0 ORDER BY detected_at ASC, id ASC`,
		changeColumns, col))
}

// MarkNotified flips the channel's delivery flag for the given changes.
// The flag only ever moves false to true; rows already marked are left
// untouched, including their original notified-at timestamp.
func (s *Store) MarkNotified(ctx context.Context, channel string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	col, err := notifiedColumn(channel)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err = s.DB.ExecContext(ctx, fmt.Sprintf(
		`UPDATE changes SET %s = 1, %s_at = ?
		WHERE id IN (%s) AND %s = 0`,
		col, col, placeholders(len(ids)), col), args...)
	return err
}

// RecentChanges returns the most recently detected changes, newest first.
func (s *Store) RecentChanges(ctx context.Context, limit int) ([]*ChangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryChanges(ctx, fmt.Sprintf(
		`SELECT %s FROM changes ORDER BY detected_at DESC, id DESC LIMIT ?`,
		changeColumns), limit)
}

// notifiedColumn maps a validated channel name to its flag column.
// Only fixed identifiers ever reach the SQL text.
func notifiedColumn(channel string) (string, error) {
	if err := validChannel(channel); err != nil {
		return "", err
	}
	switch channel {
	case ChannelTelegram:
		return "telegram_notified", nil
	default:
		return "webhook_notified", nil
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *Store) queryChanges(ctx context.Context, query string, args ...any) ([]*ChangeRecord, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*ChangeRecord
	for rows.Next() {
		var c ChangeRecord
		err := rows.Scan(&c.ID, &c.TargetID, &c.OldSnapshotID, &c.NewSnapshotID,
			&c.ChangeType, &c.Severity, &c.Summary, &c.DetailJSON, &c.DetectedAt,
			&c.WebhookNotified, &c.WebhookNotifiedAt,
			&c.TelegramNotified, &c.TelegramNotifiedAt)
		if err != nil {
			return nil, err
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
