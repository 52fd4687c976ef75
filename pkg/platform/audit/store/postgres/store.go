package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	audit "mediconnect/pkg/platform/audit"
	"mediconnect/pkg/platform/sentinel"
	txcontext "mediconnect/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Schema creates the audit table. Rows are never updated or deleted by the
// application.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id            BIGINT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	user_email    TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT,
	ip_address    TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	details       JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_records_user_id_idx ON audit_records (user_id);
CREATE INDEX IF NOT EXISTS audit_records_created_at_idx ON audit_records (created_at);
`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies Schema in a single transaction.
func (s *Store) Migrate(ctx context.Context) error {
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := s.execer(ctx).ExecContext(ctx, Schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts one record. It joins the caller's transaction when one is
// present in ctx.
func (s *Store) Append(ctx context.Context, record audit.Record) error {
	details, err := json.Marshal(record.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_records (
			id, user_id, user_email, action, resource_type, resource_id,
			ip_address, user_agent, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		int64(record.ID),
		record.UserID,
		record.UserEmail,
		string(record.Action),
		string(record.ResourceType),
		record.ResourceID,
		record.IPAddress,
		record.UserAgent,
		details,
		record.Timestamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("audit record %d: %w", record.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// isUniqueViolation recognizes duplicate keys from either the pgx or the
// lib/pq driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// Query scans matching records in id order.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Action != "" {
		add("action = $%d", string(filter.Action))
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", string(filter.ResourceType))
	}
	if filter.Start != nil {
		add("created_at >= $%d", *filter.Start)
	}
	if filter.End != nil {
		add("created_at <= $%d", *filter.End)
	}

	query := `
		SELECT id, user_id, user_email, action, resource_type, resource_id,
			   ip_address, user_agent, details, created_at
		FROM audit_records`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LastID returns the highest stored id.
func (s *Store) LastID(ctx context.Context) (audit.RecordID, error) {
	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM audit_records`).Scan(&last); err != nil {
		return 0, fmt.Errorf("load last audit id: %w", err)
	}
	if !last.Valid {
		return 0, nil
	}
	return audit.RecordID(last.Int64), nil
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	records := make([]audit.Record, 0)
	for rows.Next() {
		var (
			rec        audit.Record
			id         int64
			action     string
			resource   string
			resourceID sql.NullString
			details    []byte
		)
		err := rows.Scan(
			&id,
			&rec.UserID,
			&rec.UserEmail,
			&action,
			&resource,
			&resourceID,
			&rec.IPAddress,
			&rec.UserAgent,
			&details,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.ID = audit.RecordID(id)
		rec.Action = audit.Action(action)
		rec.ResourceType = audit.ResourceType(resource)
		if resourceID.Valid {
			rec.ResourceID = &resourceID.String
		}
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return nil, fmt.Errorf("decode audit details %d: %w", id, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
