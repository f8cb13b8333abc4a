package approvals

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"corporatepay-reconciliation/pkg/errors"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteBackend = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS approval_items (
	id         TEXT PRIMARY KEY,
	workflow   TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	body       TEXT NOT NULL
)`

type approvalRow struct {
	ID        string `db:"id"`
	Workflow  string `db:"workflow"`
	Status    string `db:"status"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
	Body      string `db:"body"`
}

func (r approvalRow) item() (ApprovalItem, error) {
	var item ApprovalItem
	if err := json.Unmarshal([]byte(r.Body), &item); err != nil {
		return ApprovalItem{}, errors.StorageError(errors.CodeStoreCorrupted, sqliteBackend, "decode", err).
			WithContext("approval_id", r.ID)
	}
	return item, nil
}

// SQLiteStore keeps one row per approval item. The full item is stored as a
// JSON body; workflow and status are copied into columns for inspection.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens dsn with the pure-Go sqlite driver and creates the
// table if needed
func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "approvals.dsn", dsn, nil).
			WithSuggestion("set approvals.dsn to a sqlite file path")
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, sqliteBackend, "open", err).
			WithContext("dsn", dsn)
	}
	// one writer keeps upserts serialised inside the process
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.StorageError(errors.CodeStoreUnavailable, sqliteBackend, "migrate", err).
			WithContext("dsn", dsn)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (ApprovalItem, bool, error) {
	var row approvalRow
	err := s.db.GetContext(ctx, &row, `SELECT id, workflow, status, created_at, updated_at, body FROM approval_items WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return ApprovalItem{}, false, nil
	}
	if err != nil {
		return ApprovalItem{}, false, errors.StorageError(errors.CodeStoreUnavailable, sqliteBackend, "get", err).
			WithContext("approval_id", id)
	}

	item, err := row.item()
	if err != nil {
		return ApprovalItem{}, false, err
	}
	return item, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]ApprovalItem, error) {
	var rows []approvalRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, workflow, status, created_at, updated_at, body FROM approval_items ORDER BY created_at, id`); err != nil {
		return nil, errors.StorageError(errors.CodeStoreUnavailable, sqliteBackend, "list", err)
	}

	items := make([]ApprovalItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.item()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

func (s *SQLiteStore) Put(ctx context.Context, item ApprovalItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return errors.StorageError(errors.CodeUnexpectedError, sqliteBackend, "encode", err)
	}

	row := approvalRow{
		ID:        item.ID,
		Workflow:  item.Workflow,
		Status:    string(item.Status),
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: item.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Body:      string(body),
	}
	const q = `
		INSERT INTO approval_items (id, workflow, status, created_at, updated_at, body)
		VALUES (:id, :workflow, :status, :created_at, :updated_at, :body)
		ON CONFLICT(id) DO UPDATE SET
			workflow = excluded.workflow,
			status = excluded.status,
			updated_at = excluded.updated_at,
			body = excluded.body`
	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return errors.StorageError(errors.CodeStoreUnavailable, sqliteBackend, "put", err).
			WithContext("approval_id", item.ID)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM approval_items`); err != nil {
		return 0, errors.StorageError(errors.CodeStoreUnavailable, sqliteBackend, "count", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
