package db

// Schema defines the SQLite database schema of the control panel.
// session_state holds the persisted local state as key/value pairs,
// notification_log every notification accepted by a flow, and
// archive_sequence the counter used to name uploaded log archives.
const Schema = `
CREATE TABLE IF NOT EXISTS session_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS notification_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    flow_id TEXT NOT NULL,
    label TEXT NOT NULL,
    cmd TEXT NOT NULL,
    type INTEGER NOT NULL,
    code INTEGER NOT NULL,
    payload TEXT NOT NULL,
    received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notification_log_flow_id ON notification_log(flow_id);
CREATE INDEX IF NOT EXISTS idx_notification_log_cmd ON notification_log(cmd);
CREATE INDEX IF NOT EXISTS idx_notification_log_received_at ON notification_log(received_at);

CREATE TABLE IF NOT EXISTS archive_sequence (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    next_archive_id INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO archive_sequence (id, next_archive_id) VALUES (1, 1);
`

// Entry is one row of the notification log.
type Entry struct {
	ID         int64  `json:"id"`
	FlowID     string `json:"flowId"`
	Label      string `json:"label"`
	Cmd        string `json:"cmd"`
	Type       int    `json:"type"`
	Code       int    `json:"code"`
	Payload    string `json:"payload"`
	ReceivedAt string `json:"receivedAt"`
}

// Filter narrows ListNotifications. Zero fields match everything.
type Filter struct {
	FlowID string
	Cmd    string
	Limit  int
}
