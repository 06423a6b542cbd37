package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/repairkit/fixtree/pkg/schema"
)

// --- Change log on LibSQLStore ---

// AppendChange inserts a change entry with the next per-workflow sequence
// number. A write-intent statement forces lock acquisition up front so
// concurrent appenders cannot interleave sequence reads and writes.
func (s *LibSQLStore) AppendChange(ctx context.Context, entry *ChangeEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode, BeginTx alone may start a deferred transaction.
	// We use an immediate-mode write to force lock acquisition.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM change_log WHERE workflow_id = ?`, entry.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	entry.Sequence = seq
	entry.Timestamp = timeOrNow(entry.Timestamp)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO change_log (workflow_id, change_type, payload, actor, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.WorkflowID, entry.Type, nullRaw(entry.Payload), nullStr(entry.Actor), entry.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit change: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetChanges(ctx context.Context, workflowID string, since int64) ([]*ChangeEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, change_type, payload, actor, timestamp, sequence
		 FROM change_log WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

func (s *LibSQLStore) GetChangesByType(ctx context.Context, changeType string, filter ChangeFilter) ([]*ChangeEntry, error) {
	var where []string
	var args []any

	where = append(where, "change_type = ?")
	args = append(args, changeType)

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, workflow_id, change_type, payload, actor, timestamp, sequence FROM change_log`
	query += " WHERE " + strings.Join(where, " AND ")
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChanges(rows)
}

// PruneChanges deletes change log entries older than the cutoff and returns
// how many rows were removed. The scheduler runs this nightly.
func (s *LibSQLStore) PruneChanges(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM change_log WHERE timestamp < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanChanges(rows *sql.Rows) ([]*ChangeEntry, error) {
	var entries []*ChangeEntry
	for rows.Next() {
		e := &ChangeEntry{}
		var payload, actor sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Type, &payload, &actor, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		e.Actor = actor.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- ChangeLog wrapper ---

// ChangeLog provides versioned change tracking on top of a LibSQLStore.
type ChangeLog struct {
	store *LibSQLStore
}

// NewChangeLog wraps a LibSQLStore to provide change tracking operations.
func NewChangeLog(s *LibSQLStore) *ChangeLog {
	return &ChangeLog{store: s}
}

// Append appends a change with a monotonically increasing per-workflow
// sequence. It is a thin front for the store's AppendChange so both entry
// points allocate sequence numbers the same way.
func (cl *ChangeLog) Append(ctx context.Context, entry *ChangeEntry) error {
	return cl.store.AppendChange(ctx, entry)
}

// History returns the full, gap-checked change history of a workflow in
// sequence order. A sequence gap means entries were pruned or lost, which
// callers reconstructing state need to know about.
func (cl *ChangeLog) History(ctx context.Context, workflowID string) ([]*ChangeEntry, error) {
	entries, err := cl.store.GetChanges(ctx, workflowID, 0)
	if err != nil {
		return nil, fmt.Errorf("get changes for history: %w", err)
	}
	for i, e := range entries {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in workflow %s: expected %d, got %d", workflowID, expected, e.Sequence)
		}
	}
	return entries, nil
}
