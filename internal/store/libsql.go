package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/repairkit/fixtree/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. change log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

const workflowColumns = `id, name, folder, appliance, is_active, order_index, definition, created_at, updated_at`

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *WorkflowRecord) error {
	def, err := json.Marshal(wf.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	folder := wf.Folder
	if folder == "" {
		folder = schema.DefaultFolder
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, folder, appliance, is_active, order_index, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, folder, nullStr(wf.Appliance), boolInt(wf.IsActive), wf.OrderIndex,
		string(def), timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists in folder %q", wf.Name, folder)
	}
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	return wf, err
}

// FindWorkflowByName returns the workflow with the given name, regardless of
// folder. The sync layer uses this to match incoming saves from clients that
// identify workflows by name only. Returns a not-found error when no row
// matches; when several folders hold a workflow with the same name the most
// recently updated one wins.
func (s *LibSQLStore) FindWorkflowByName(ctx context.Context, name string) (*WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE name = ? ORDER BY updated_at DESC LIMIT 1`, name)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", name)
	}
	return wf, err
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Folder != nil {
		sets = append(sets, "folder = ?")
		args = append(args, *update.Folder)
	}
	if update.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, boolInt(*update.IsActive))
	}
	if update.OrderIndex != nil {
		sets = append(sets, "order_index = ?")
		args = append(args, *update.OrderIndex)
	}
	if update.Definition != nil {
		def, err := json.Marshal(update.Definition)
		if err != nil {
			return fmt.Errorf("marshal definition: %w", err)
		}
		sets = append(sets, "definition = ?")
		args = append(args, string(def))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow update collides with an existing (name, folder) pair")
		}
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error) {
	var where []string
	var args []any

	if filter.Folder != "" {
		where = append(where, "(folder = ? OR appliance = ?)")
		args = append(args, filter.Folder, filter.Folder)
	}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Active != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolInt(*filter.Active))
	}

	query := `SELECT ` + workflowColumns + ` FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY folder, order_index, name"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*WorkflowRecord
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row scanner) (*WorkflowRecord, error) {
	wf := &WorkflowRecord{}
	var (
		appliance sql.NullString
		isActive  int
		defJSON   string
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Folder, &appliance, &isActive, &wf.OrderIndex,
		&defJSON, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.Appliance = appliance.String
	wf.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(defJSON), &wf.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return wf, nil
}

// --- Folders ---

func (s *LibSQLStore) CreateFolder(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO folders (name, created_at) VALUES (?, CURRENT_TIMESTAMP)`, name)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return schema.NewErrorf(schema.ErrCodeConflict, "folder %q already exists", name)
	}
	return err
}

func (s *LibSQLStore) ListFolders(ctx context.Context) ([]*Folder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, created_at FROM folders ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f := &Folder{}
		if err := rows.Scan(&f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (s *LibSQLStore) RenameFolder(ctx context.Context, oldName, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE folders SET name = ? WHERE name = ?`, newName, oldName)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return schema.NewErrorf(schema.ErrCodeConflict, "folder %q already exists", newName)
		}
		return err
	}
	if err := checkRowsAffected(res, "folder", oldName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE workflows SET folder = ? WHERE folder = ?`, newName, oldName); err != nil {
		return fmt.Errorf("migrate folder members: %w", err)
	}
	return tx.Commit()
}

func (s *LibSQLStore) DeleteFolder(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "folder", name)
}

// ReassignFolder moves every workflow in the from folder into the to folder
// and returns how many rows moved.
func (s *LibSQLStore) ReassignFolder(ctx context.Context, from, to string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET folder = ?, updated_at = CURRENT_TIMESTAMP WHERE folder = ?`, to, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Usage metering ---

func (s *LibSQLStore) IncrementUsage(ctx context.Context, action string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_counters (action, count, updated_at) VALUES (?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(action) DO UPDATE SET count = count + 1, updated_at = CURRENT_TIMESTAMP
		 RETURNING count`, action,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment usage %q: %w", action, err)
	}
	return count, nil
}

func (s *LibSQLStore) GetUsage(ctx context.Context, action string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_counters WHERE action = ?`, action).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

func (s *LibSQLStore) ResetUsage(ctx context.Context, actions ...string) error {
	if len(actions) == 0 {
		return nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(actions)), ",")
	args := make([]any, len(actions))
	for i, a := range actions {
		args[i] = a
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE usage_counters SET count = 0, updated_at = CURRENT_TIMESTAMP WHERE action IN (%s)`, placeholders),
		args...)
	return err
}

// --- Subscription ---

func (s *LibSQLStore) GetSubscription(ctx context.Context) (*Subscription, error) {
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx,
		`SELECT plan, status, updated_at FROM subscription WHERE id = 1`,
	).Scan(&sub.Plan, &sub.Status, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("subscription", "1")
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *LibSQLStore) SetSubscription(ctx context.Context, sub *Subscription) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscription (id, plan, status, updated_at) VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET plan=excluded.plan, status=excluded.status, updated_at=CURRENT_TIMESTAMP`,
		sub.Plan, sub.Status,
	)
	return err
}

// --- Notifications ---

func (s *LibSQLStore) CreateNotification(ctx context.Context, n *Notification) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (type, message, details, created_at) VALUES (?, ?, ?, ?)`,
		n.Type, n.Message, nullRaw(n.Details), timeOrNow(n.CreatedAt),
	)
	if err != nil {
		return err
	}
	n.ID, err = res.LastInsertId()
	return err
}

func (s *LibSQLStore) ListNotifications(ctx context.Context, unreadOnly bool, limit int) ([]*Notification, error) {
	query := `SELECT id, type, message, details, read, created_at FROM notifications`
	if unreadOnly {
		query += ` WHERE read = 0`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		var details sql.NullString
		var read int
		if err := rows.Scan(&n.ID, &n.Type, &n.Message, &details, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Details = rawOrNil(details)
		n.Read = read != 0
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *LibSQLStore) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "notification", fmt.Sprintf("%d", id))
}

// --- Diagnostic sessions ---

func (s *LibSQLStore) CreateSession(ctx context.Context, sess *SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, workflow_id, status, current_node, answers, measurements, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.WorkflowID, string(sess.Status), nullStr(sess.CurrentNode),
		nullRaw(sess.Answers), nullRaw(sess.Measurements),
		timeOrNow(sess.StartedAt), nullTime(sess.CompletedAt), timeOrNow(sess.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	sess := &SessionRecord{}
	var (
		status                sql.NullString
		currentNode           sql.NullString
		answers, measurements sql.NullString
		completedAt           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, status, current_node, answers, measurements, started_at, completed_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.WorkflowID, &status, &currentNode, &answers, &measurements,
		&sess.StartedAt, &completedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	sess.Status = schema.SessionStatus(status.String)
	sess.CurrentNode = currentNode.String
	sess.Answers = rawOrNil(answers)
	sess.Measurements = rawOrNil(measurements)
	if completedAt.Valid {
		sess.CompletedAt = &completedAt.Time
	}
	return sess, nil
}

func (s *LibSQLStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentNode != nil {
		sets = append(sets, "current_node = ?")
		args = append(args, *update.CurrentNode)
	}
	if update.Answers != nil {
		sets = append(sets, "answers = ?")
		args = append(args, string(update.Answers))
	}
	if update.Measurements != nil {
		sets = append(sets, "measurements = ?")
		args = append(args, string(update.Measurements))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE sessions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, workflow_id, status, current_node, answers, measurements, started_at, completed_at, updated_at FROM sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		sess := &SessionRecord{}
		var (
			status                sql.NullString
			currentNode           sql.NullString
			answers, measurements sql.NullString
			completedAt           sql.NullTime
		)
		if err := rows.Scan(&sess.ID, &sess.WorkflowID, &status, &currentNode, &answers, &measurements,
			&sess.StartedAt, &completedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sess.Status = schema.SessionStatus(status.String)
		sess.CurrentNode = currentNode.String
		sess.Answers = rawOrNil(answers)
		sess.Measurements = rawOrNil(measurements)
		if completedAt.Valid {
			sess.CompletedAt = &completedAt.Time
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FixtreeError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
