package store

// Target is a program whose interface definition is monitored.
type Target struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	Enabled       bool   `json:"enabled"`
	LastCheckedAt *int64 `json:"last_checked_at,omitempty"`
	LastStatus    string `json:"last_status"`
	LastError     string `json:"last_error"`
	FailCount     int    `json:"fail_count"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// Snapshot is one observed version of a target's definition.
type Snapshot struct {
	ID            string `json:"id"`
	TargetID      string `json:"target_id"`
	ContentHash   string `json:"content_hash"`
	IDLJSON       string `json:"idl_json"`
	VersionNumber int64  `json:"version_number"`
	FetchedAt     int64  `json:"fetched_at"`
}

// ChangeRecord is one detected difference between consecutive snapshots,
// with a per-channel delivery flag. The flags only ever go false to true.
type ChangeRecord struct {
	ID                 string  `json:"id"`
	TargetID           string  `json:"target_id"`
	OldSnapshotID      *string `json:"old_snapshot_id,omitempty"`
	NewSnapshotID      string  `json:"new_snapshot_id"`
	ChangeType         string  `json:"change_type"`
	Severity           string  `json:"severity"`
	Summary            string  `json:"summary"`
	DetailJSON         string  `json:"detail_json"`
	DetectedAt         int64   `json:"detected_at"`
	WebhookNotified    bool    `json:"webhook_notified"`
	WebhookNotifiedAt  *int64  `json:"webhook_notified_at,omitempty"`
	TelegramNotified   bool    `json:"telegram_notified"`
	TelegramNotifiedAt *int64  `json:"telegram_notified_at,omitempty"`
}

// Subscriber is a notification recipient. A subscriber is interested in
// a channel only when the matching channel config is non-empty.
type Subscriber struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TelegramChatID string `json:"telegram_chat_id"`
	WebhookURL     string `json:"webhook_url"`
	WebhookSecret  string `json:"-"`
	Enabled        bool   `json:"enabled"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}
