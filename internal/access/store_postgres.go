package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// PostgresDirectory reads admin grants from PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE admin_grants (
//	    user_id UUID PRIMARY KEY,
//	    granted_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) IsAdmin(ctx context.Context, userID domain.UserID) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM admin_grants WHERE user_id = $1)`,
		uuid.UUID(userID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check admin grant: %w", err)
	}
	return exists, nil
}
