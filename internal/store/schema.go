package store

// Schema is the complete service schema.
const Schema = `
-- Programs whose interface definitions are monitored
CREATE TABLE IF NOT EXISTS targets (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    address         TEXT NOT NULL UNIQUE,
    enabled         INTEGER NOT NULL DEFAULT 1,
    last_checked_at INTEGER,
    last_status     TEXT NOT NULL DEFAULT 'pending',
    last_error      TEXT NOT NULL DEFAULT '',
    fail_count      INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_enabled ON targets(enabled);

-- Append-only history of observed definitions
CREATE TABLE IF NOT EXISTS snapshots (
    id              TEXT PRIMARY KEY,
    target_id       TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    content_hash    TEXT NOT NULL,
    idl_json        TEXT NOT NULL,
    version_number  INTEGER NOT NULL,
    fetched_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(target_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_snapshots_version ON snapshots(target_id, version_number DESC);

-- Detected changes between consecutive snapshots
CREATE TABLE IF NOT EXISTS changes (
    id                   TEXT PRIMARY KEY,
    target_id            TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    old_snapshot_id      TEXT REFERENCES snapshots(id),
    new_snapshot_id      TEXT NOT NULL REFERENCES snapshots(id),
    change_type          TEXT NOT NULL,
    severity             TEXT NOT NULL,
    summary              TEXT NOT NULL,
    detail_json          TEXT NOT NULL DEFAULT '{}',
    detected_at          INTEGER NOT NULL,
    webhook_notified     INTEGER NOT NULL DEFAULT 0,
    webhook_notified_at  INTEGER,
    telegram_notified    INTEGER NOT NULL DEFAULT 0,
    telegram_notified_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_changes_target ON changes(target_id, detected_at);
CREATE INDEX IF NOT EXISTS idx_changes_webhook_pending ON changes(webhook_notified, detected_at);
CREATE INDEX IF NOT EXISTS idx_changes_telegram_pending ON changes(telegram_notified, detected_at);

-- Notification recipients
CREATE TABLE IF NOT EXISTS subscribers (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    telegram_chat_id TEXT NOT NULL DEFAULT '',
    webhook_url      TEXT NOT NULL DEFAULT '',
    webhook_secret   TEXT NOT NULL DEFAULT '',
    enabled          INTEGER NOT NULL DEFAULT 1,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

-- Which subscriber watches which target
CREATE TABLE IF NOT EXISTS watchlist (
    subscriber_id TEXT NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
    target_id     TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
    PRIMARY KEY (subscriber_id, target_id)
);
`
