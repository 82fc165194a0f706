package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/tx"
)

// PostgresStore persists verification requests in PostgreSQL. Conditional
// transitions use single-statement conditional UPDATEs, so the row claim
// is atomic without application locks.
//
// Expected schema:
//
//	CREATE TABLE verification_requests (
//	    id UUID PRIMARY KEY,
//	    document_id UUID NOT NULL REFERENCES documents (id),
//	    user_id UUID NOT NULL,
//	    kind TEXT NOT NULL,
//	    status TEXT NOT NULL,
//	    priority INT NOT NULL DEFAULT 0,
//	    requested_at TIMESTAMPTZ NOT NULL,
//	    started_at TIMESTAMPTZ,
//	    completed_at TIMESTAMPTZ,
//	    result_status TEXT,
//	    metadata JSONB NOT NULL DEFAULT '{}'
//	);
//	CREATE INDEX verification_requests_document_status_idx
//	    ON verification_requests (document_id, status);
//	CREATE UNIQUE INDEX verification_requests_one_open_per_document
//	    ON verification_requests (document_id)
//	    WHERE status IN ('pending', 'in_progress');
//
// The partial unique index backs the at-most-one-open-request rule: two
// transactions that both see no open request cannot both insert one.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed verification request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const requestColumns = `id, document_id, user_id, kind, status, priority,
	requested_at, started_at, completed_at, result_status, metadata`

func (s *PostgresStore) Create(ctx context.Context, req *models.VerificationRequest) error {
	metadata, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("marshal request metadata: %w", err)
	}
	query := `
		INSERT INTO verification_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(req.ID),
		uuid.UUID(req.DocumentID),
		uuid.UUID(req.UserID),
		string(req.Kind),
		string(req.Status),
		req.Priority,
		req.RequestedAt,
		req.StartedAt,
		req.CompletedAt,
		resultStatusParam(req.ResultStatus),
		metadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create verification request: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) Get(ctx context.Context, id domain.RequestID) (*models.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	req, err := scanRequest(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get verification request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListByDocument(ctx context.Context, docID domain.DocumentID) ([]*models.VerificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE document_id = $1
		ORDER BY priority DESC, requested_at DESC
	`
	rows, err := s.q(ctx).QueryContext(ctx, query, uuid.UUID(docID))
	if err != nil {
		return nil, fmt.Errorf("list requests by document: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.VerificationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PostgresStore) OpenForDocument(ctx context.Context, docID domain.DocumentID) (*models.VerificationRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE document_id = $1 AND status IN ('pending', 'in_progress')
		LIMIT 1
	`
	req, err := scanRequest(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(docID)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("open request for document: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Claim(ctx context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error) {
	query := `
		UPDATE verification_requests
		SET status = 'in_progress',
		    started_at = GREATEST($2, requested_at)
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + requestColumns + `
	`
	req, err := scanRequest(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(id), at))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, s.stateOrMissing(ctx, id)
		}
		return nil, fmt.Errorf("claim verification request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Finalize(ctx context.Context, id domain.RequestID, to models.Status, at time.Time, resultStatus *docmodels.Status, metadata map[string]any) (*models.VerificationRequest, error) {
	if !to.IsTerminal() {
		return nil, sentinel.ErrInvalidState
	}
	merged, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal finalize metadata: %w", err)
	}
	query := `
		UPDATE verification_requests
		SET status = $2,
		    completed_at = $3,
		    result_status = $4,
		    metadata = metadata || $5
		WHERE id = $1 AND status = 'in_progress'
		RETURNING ` + requestColumns + `
	`
	req, err := scanRequest(s.q(ctx).QueryRowContext(ctx, query,
		uuid.UUID(id), string(to), at, resultStatusParam(resultStatus), merged,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, s.stateOrMissing(ctx, id)
		}
		return nil, fmt.Errorf("finalize verification request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) Cancel(ctx context.Context, id domain.RequestID, at time.Time) (*models.VerificationRequest, error) {
	query := `
		UPDATE verification_requests
		SET status = 'cancelled', completed_at = $2
		WHERE id = $1 AND status IN ('pending', 'in_progress')
		RETURNING ` + requestColumns + `
	`
	req, err := scanRequest(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(id), at))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, s.stateOrMissing(ctx, id)
		}
		return nil, fmt.Errorf("cancel verification request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, docID domain.DocumentID, purgeCompleted bool) error {
	query := `DELETE FROM verification_requests WHERE document_id = $1 AND status <> 'completed'`
	if purgeCompleted {
		query = `DELETE FROM verification_requests WHERE document_id = $1`
	}
	if _, err := s.q(ctx).ExecContext(ctx, query, uuid.UUID(docID)); err != nil {
		return fmt.Errorf("delete requests by document: %w", err)
	}
	return nil
}

// stateOrMissing distinguishes a lost conditional update from a missing
// row so callers get the right sentinel.
func (s *PostgresStore) stateOrMissing(ctx context.Context, id domain.RequestID) error {
	var exists bool
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM verification_requests WHERE id = $1)`,
		uuid.UUID(id),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check request existence: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.VerificationRequest, error) {
	var (
		req           models.VerificationRequest
		reqID         uuid.UUID
		docID, userID uuid.UUID
		kind, status  string
		resultStatus  sql.NullString
		metadata      []byte
	)
	err := row.Scan(
		&reqID, &docID, &userID, &kind, &status, &req.Priority,
		&req.RequestedAt, &req.StartedAt, &req.CompletedAt,
		&resultStatus, &metadata,
	)
	if err != nil {
		return nil, err
	}
	req.ID = domain.RequestID(reqID)
	req.DocumentID = domain.DocumentID(docID)
	req.UserID = domain.UserID(userID)
	req.Kind = models.RequestKind(kind)
	req.Status = models.Status(status)
	if resultStatus.Valid {
		rs := docmodels.Status(resultStatus.String)
		req.ResultStatus = &rs
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &req.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal request metadata: %w", err)
		}
	}
	return &req, nil
}

func collectRequests(rows *sql.Rows) ([]*models.VerificationRequest, error) {
	var out []*models.VerificationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func resultStatusParam(status *docmodels.Status) any {
	if status == nil {
		return nil
	}
	return string(*status)
}
