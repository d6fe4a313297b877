// Package store is the data access layer for the monitoring service.
//
// It wraps one SQLite database holding the monitored targets, the
// append-only snapshot history, detected change records and the
// subscriber roster. All timestamps are Unix milliseconds.
package store

import (
	"database/sql"
	"fmt"
)

// Notification channels. Every channel-parameterised operation
// validates against this fixed set before touching SQL.
const (
	ChannelWebhook  = "webhook"
	ChannelTelegram = "telegram"
)

// Channels lists every supported notification channel.
var Channels = []string{ChannelWebhook, ChannelTelegram}

// Store wraps the service database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Init applies the schema. Safe to call on every startup.
func (s *Store) Init() error {
	if _, err := s.DB.Exec(Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

func validChannel(channel string) error {
	switch channel {
	case ChannelWebhook, ChannelTelegram:
		return nil
	}
	return fmt.Errorf("store: unknown channel %q", channel)
}
