package store

import (
	"context"
	"time"
)

// InsertSubscriber adds a notification recipient.
func (s *Store) InsertSubscriber(ctx context.Context, sub *Subscriber) error {
	now := time.Now().UnixMilli()
	if sub.CreatedAt == 0 {
		sub.CreatedAt = now
	}
	if sub.UpdatedAt == 0 {
		sub.UpdatedAt = now
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO subscribers (id, name, telegram_chat_id, webhook_url,
		webhook_secret, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Name, sub.TelegramChatID, sub.WebhookURL,
		sub.WebhookSecret, sub.Enabled, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

// Watch links a subscriber to a target. Idempotent.
func (s *Store) Watch(ctx context.Context, subscriberID, targetID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO watchlist (subscriber_id, target_id) VALUES (?, ?)`,
		subscriberID, targetID)
	return err
}

// Unwatch removes a watchlist link.
func (s *Store) Unwatch(ctx context.Context, subscriberID, targetID string) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM watchlist WHERE subscriber_id = ? AND target_id = ?`,
		subscriberID, targetID)
	return err
}

// SubscribersForTarget returns the enabled subscribers watching a target
// that are reachable on the given channel. A subscriber with an empty
// channel config does not count as interested.
func (s *Store) SubscribersForTarget(ctx context.Context, targetID, channel string) ([]*Subscriber, error) {
	if err := validChannel(channel); err != nil {
		return nil, err
	}
	configCol := "webhook_url"
	if channel == ChannelTelegram {
		configCol = "telegram_chat_id"
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT s.id, s.name, s.telegram_chat_id, s.webhook_url,
		s.webhook_secret, s.enabled, s.created_at, s.updated_at
		FROM subscribers s
		JOIN watchlist w ON w.subscriber_id = s.id
		WHERE w.target_id = ? AND s.enabled = 1 AND s.`+configCol+` != ''
		ORDER BY s.created_at ASC`, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		var sub Subscriber
		err := rows.Scan(&sub.ID, &sub.Name, &sub.TelegramChatID, &sub.WebhookURL,
			&sub.WebhookSecret, &sub.Enabled, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}
