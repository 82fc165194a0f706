package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/sentinel"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/platform/tx"
)

// PostgresStore persists documents in PostgreSQL. Pure I/O; status
// derivation belongs to the state machine and services.
//
// Expected schema:
//
//	CREATE TABLE documents (
//	    id UUID PRIMARY KEY,
//	    user_id UUID NOT NULL,
//	    name TEXT NOT NULL,
//	    kind TEXT NOT NULL,
//	    issuer TEXT NOT NULL DEFAULT '',
//	    institution_id UUID,
//	    file_ref TEXT NOT NULL,
//	    file_size BIGINT NOT NULL DEFAULT 0,
//	    file_type TEXT NOT NULL DEFAULT '',
//	    uploaded_at TIMESTAMPTZ NOT NULL,
//	    expiry_date TIMESTAMPTZ,
//	    status TEXT NOT NULL,
//	    privacy TEXT NOT NULL,
//	    shared_with UUID[] NOT NULL DEFAULT '{}',
//	    metadata JSONB NOT NULL DEFAULT '{}',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX documents_user_status_idx ON documents (user_id, status);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction carried on ctx when the state machine runs
// this store inside one, else the plain handle.
func (s *PostgresStore) q(ctx context.Context) querier {
	if sqlTx, ok := tx.From(ctx); ok {
		return sqlTx
	}
	return s.db
}

const documentColumns = `id, user_id, name, kind, issuer, institution_id, file_ref, file_size, file_type,
	uploaded_at, expiry_date, status, privacy, shared_with, metadata, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	sharedWith := make([]uuid.UUID, len(doc.SharedWith))
	for i, id := range doc.SharedWith {
		sharedWith[i] = uuid.UUID(id)
	}
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = s.q(ctx).ExecContext(ctx, query,
		uuid.UUID(doc.ID),
		uuid.UUID(doc.UserID),
		doc.Name,
		string(doc.Kind),
		doc.Issuer,
		institutionParam(doc.InstitutionID),
		doc.FileRef,
		doc.FileSize,
		doc.FileType,
		doc.UploadedAt,
		doc.ExpiryDate,
		string(doc.Status),
		string(doc.Privacy),
		pq.Array(sharedWith),
		metadata,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(s.q(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.q(ctx).QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list documents by user: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents ORDER BY created_at DESC`
	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id domain.DocumentID, status models.Status, updatedAt time.Time) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(id), string(status), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) UpdatePrivacy(ctx context.Context, id domain.DocumentID, privacy models.Privacy, sharedWith []domain.UserID, updatedAt time.Time) error {
	ids := make([]uuid.UUID, len(sharedWith))
	for i, u := range sharedWith {
		ids[i] = uuid.UUID(u)
	}
	res, err := s.q(ctx).ExecContext(ctx,
		`UPDATE documents SET privacy = $2, shared_with = $3, updated_at = $4 WHERE id = $1`,
		uuid.UUID(id), string(privacy), pq.Array(ids), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document privacy: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.DocumentID) error {
	res, err := s.q(ctx).ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count documents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc           models.Document
		docID, userID uuid.UUID
		institutionID uuid.NullUUID
		kind          string
		status        string
		privacy       string
		sharedWith    []uuid.UUID
		metadata      []byte
	)
	err := row.Scan(
		&docID, &userID, &doc.Name, &kind, &doc.Issuer, &institutionID,
		&doc.FileRef, &doc.FileSize, &doc.FileType, &doc.UploadedAt,
		&doc.ExpiryDate, &status, &privacy, pq.Array(&sharedWith),
		&metadata, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = domain.DocumentID(docID)
	doc.UserID = domain.UserID(userID)
	doc.Kind = models.Kind(kind)
	doc.Status = models.Status(status)
	doc.Privacy = models.Privacy(privacy)
	if institutionID.Valid {
		inst := domain.UserID(institutionID.UUID)
		doc.InstitutionID = &inst
	}
	for _, id := range sharedWith {
		doc.SharedWith = append(doc.SharedWith, domain.UserID(id))
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal document metadata: %w", err)
		}
	}
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]*models.Document, error) {
	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func institutionParam(id *domain.UserID) any {
	if id == nil {
		return nil
	}
	return uuid.UUID(*id)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
