package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dwarf-astro/dwarfctl/pkg/errors"
	"github.com/dwarf-astro/dwarfctl/pkg/protocol"
	_ "modernc.org/sqlite"
)

// Repository provides the database operations of the persisted session state
// and the notification log.
type Repository struct {
	db *sql.DB
}

// NewRepository opens (and creates if needed) the database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}
	// The sequencer loop and the CLI write from different goroutines.
	db.SetMaxOpenConns(1)

	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// PutState stores the value of a persisted session key.
func (r *Repository) PutState(ctx context.Context, key, value string) error {
	slog.Debug("database_put_state", "key", key)

	query := `
		INSERT INTO session_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		slog.Error("database_put_state_failed", "key", key, "error", err)
		return errors.Wrapf(err, "failed to store state %q", key)
	}
	return nil
}

// GetState returns the value of a persisted session key. The second return
// value is false when the key was never stored.
func (r *Repository) GetState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM session_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		slog.Debug("database_state_not_found", "key", key)
		return "", false, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "key", key, "error", err)
		return "", false, errors.Wrapf(err, "failed to query state %q", key)
	}
	return value, true, nil
}

// ListState returns every persisted key with its value.
func (r *Repository) ListState(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM session_state ORDER BY key`)
	if err != nil {
		slog.Error("database_list_state_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list state")
	}
	defer rows.Close()

	state := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		state[k] = v
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}
	return state, nil
}

// ClearState removes every persisted key.
func (r *Repository) ClearState(ctx context.Context) error {
	slog.Info("database_clear_state")
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_state`); err != nil {
		slog.Error("database_clear_state_failed", "error", err)
		return errors.Wrap(err, "failed to clear state")
	}
	return nil
}

// RecordNotification appends a notification accepted by a flow to the log.
func (r *Repository) RecordNotification(flowID, label string, n protocol.Notification) error {
	payload, err := json.Marshal(n.Data)
	if err != nil {
		return errors.Wrap(err, "failed to encode payload")
	}

	query := `
		INSERT INTO notification_log (flow_id, label, cmd, type, code, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, flowID, label, string(n.Tag), int(n.Type), int(n.Data.Code), string(payload))
	if err != nil {
		slog.Error("database_insert_failed", "flow_id", flowID, "cmd", n.Tag, "error", err)
		return errors.Wrap(err, "failed to insert notification")
	}
	return nil
}

// ListNotifications returns the log entries matching f, oldest first. With a
// limit, the most recent entries are returned.
func (r *Repository) ListNotifications(ctx context.Context, f Filter) ([]*Entry, error) {
	slog.Info("database_list_notifications", "flow_id", f.FlowID, "cmd", f.Cmd, "limit", f.Limit)

	var (
		where []string
		args  []any
	)
	if f.FlowID != "" {
		where = append(where, "flow_id = ?")
		args = append(args, f.FlowID)
	}
	if f.Cmd != "" {
		where = append(where, "cmd = ?")
		args = append(args, f.Cmd)
	}

	query := `SELECT id, flow_id, label, cmd, type, code, payload, received_at FROM notification_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list notifications")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(&e.ID, &e.FlowID, &e.Label, &e.Cmd, &e.Type, &e.Code, &e.Payload, &e.ReceivedAt)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	// Newest first from the query; callers read the log in order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	slog.Info("database_list_complete", "entry_count", len(entries))
	return entries, nil
}

// ExportJSONLines writes the whole notification log to w, one JSON object per
// line, and returns the number of entries written.
func (r *Repository) ExportJSONLines(ctx context.Context, w io.Writer) (int, error) {
	entries, err := r.ListNotifications(ctx, Filter{})
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	for i, e := range entries {
		if err := enc.Encode(e); err != nil {
			slog.Error("database_export_failed", "entry_id", e.ID, "error", err)
			return i, errors.Wrap(err, "failed to write entry")
		}
	}
	slog.Info("database_export_complete", "entry_count", len(entries))
	return len(entries), nil
}

// PruneNotifications deletes the log entries received before cutoff.
func (r *Repository) PruneNotifications(ctx context.Context, cutoff time.Time) (int64, error) {
	slog.Info("database_prune_notifications", "cutoff", cutoff)

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE received_at < ?`,
		cutoff.UTC().Format(time.DateTime))
	if err != nil {
		slog.Error("database_delete_failed", "error", err)
		return 0, errors.Wrap(err, "failed to prune notifications")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "error", err)
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	slog.Info("database_notifications_pruned", "deleted", rows)
	return rows, nil
}

// AllocateArchiveID returns the next sequence number used to name a log
// archive.
func (r *Repository) AllocateArchiveID(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed_to_begin_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var nextID int
	err = tx.QueryRowContext(ctx, "SELECT next_archive_id FROM archive_sequence WHERE id = 1").Scan(&nextID)
	if err != nil {
		slog.Error("failed_to_query_archive_sequence", "error", err)
		return 0, errors.Wrap(err, "failed to query archive sequence")
	}

	_, err = tx.ExecContext(ctx, "UPDATE archive_sequence SET next_archive_id = ? WHERE id = 1", nextID+1)
	if err != nil {
		slog.Error("failed_to_update_archive_sequence", "error", err)
		return 0, errors.Wrap(err, "failed to update archive sequence")
	}

	if err := tx.Commit(); err != nil {
		slog.Error("failed_to_commit_transaction", "error", err)
		return 0, errors.Wrap(err, "failed to commit transaction")
	}

	slog.Info("allocated_archive_id", "archive_id", nextID, "next_available", nextID+1)
	return nextID, nil
}
