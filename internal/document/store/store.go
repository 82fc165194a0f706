package store

import (
	"context"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// Store persists documents. Implementations return pkg/platform/sentinel
// errors for factual failures; services translate them.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id domain.DocumentID) (*models.Document, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]*models.Document, error)
	ListAll(ctx context.Context) ([]*models.Document, error)
	// UpdateStatus writes a derived trust status. This is the only status
	// write path; clients never set status through Create or updates.
	UpdateStatus(ctx context.Context, id domain.DocumentID, status models.Status, updatedAt time.Time) error
	UpdatePrivacy(ctx context.Context, id domain.DocumentID, privacy models.Privacy, sharedWith []domain.UserID, updatedAt time.Time) error
	Delete(ctx context.Context, id domain.DocumentID) error
	// CountByStatus supports the aggregation reporter's fleet view over
	// the (user, status) index.
	CountByStatus(ctx context.Context) (map[models.Status]int, error)
}
