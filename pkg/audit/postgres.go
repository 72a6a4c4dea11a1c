package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/auth"
	"github.com/platinummonkey/gatehouse/pkg/rbac"
)

// PostgresSink appends decisions to the access_decisions table
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink creates a sink writing through db. Writes always go to the
// primary.
func NewPostgresSink(db *sql.DB) (*PostgresSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresSink{db: db}, nil
}

// Record inserts d
func (s *PostgresSink) Record(ctx context.Context, d Decision) error {
	stamp(&d, time.Now)

	var contextJSON []byte
	if len(d.Context) > 0 {
		var err error
		contextJSON, err = json.Marshal(d.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal decision context: %w", err)
		}
	}

	query := `
		INSERT INTO access_decisions (
			id, occurred_at, request_id,
			subject_id, tenant_id, escalation_id,
			stage, resource, action, method,
			verdict, code, reason, context
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14
		)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.Timestamp, nullString(d.RequestID),
		nullString(d.SubjectID), nullString(d.TenantID), nullString(d.EscalationID),
		string(d.Stage), nullString(d.Resource), nullString(d.Action), nullString(d.Method),
		string(d.Verdict), nullString(d.Code), nullString(d.Reason), contextJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert access decision: %w", err)
	}
	return nil
}

// PostgresEscalationStore keeps the append-only escalation trail in
// tenant_escalations. Rows are never updated or deleted.
type PostgresEscalationStore struct {
	db     *sql.DB
	reader *sql.DB
}

// NewPostgresEscalationStore creates an escalation store. reader may be a
// replica; nil reads from the primary.
func NewPostgresEscalationStore(primary, reader *sql.DB) *PostgresEscalationStore {
	if reader == nil {
		reader = primary
	}
	return &PostgresEscalationStore{db: primary, reader: reader}
}

// RecordEscalation inserts esc
func (s *PostgresEscalationStore) RecordEscalation(ctx context.Context, esc *auth.Escalation) error {
	query := `
		INSERT INTO tenant_escalations (
			id, admin_user_id, tenant_id, role, justification,
			issued_at, expires_at, request_id, source_ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		esc.ID, esc.AdminUserID, esc.TenantID, string(esc.Role), esc.Justification,
		esc.IssuedAt, esc.ExpiresAt, nullString(esc.RequestID), nullString(esc.SourceIP),
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation: %w", err)
	}
	return nil
}

const escalationColumns = `id, admin_user_id, tenant_id, role, justification,
		       issued_at, expires_at, request_id, source_ip`

// GetEscalation loads one escalation. Reads go to the primary so a just
// issued escalation is always visible.
func (s *PostgresEscalationStore) GetEscalation(ctx context.Context, id string) (*auth.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM tenant_escalations WHERE id = $1`
	esc, err := scanEscalation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrEscalationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation: %w", err)
	}
	return esc, nil
}

// ListByTenant returns the most recent escalations into tenantID
func (s *PostgresEscalationStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*auth.Escalation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + escalationColumns + `
		FROM tenant_escalations
		WHERE tenant_id = $1
		ORDER BY issued_at DESC
		LIMIT $2`
	rows, err := s.reader.QueryContext(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations: %w", err)
	}
	defer rows.Close()

	var out []*auth.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		out = append(out, esc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEscalation(row scanner) (*auth.Escalation, error) {
	esc := &auth.Escalation{}
	var (
		role      string
		requestID sql.NullString
		sourceIP  sql.NullString
	)
	err := row.Scan(
		&esc.ID, &esc.AdminUserID, &esc.TenantID, &role, &esc.Justification,
		&esc.IssuedAt, &esc.ExpiresAt, &requestID, &sourceIP,
	)
	if err != nil {
		return nil, err
	}
	esc.Role = rbac.Role(role)
	esc.RequestID = requestID.String
	esc.SourceIP = sourceIP.String
	esc.IssuedAt = esc.IssuedAt.UTC()
	esc.ExpiresAt = esc.ExpiresAt.UTC()
	return esc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
