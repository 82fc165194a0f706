package access

import (
	"context"
	"sync"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// InMemoryDirectory tracks admin grants in a set. Dev mode and tests.
type InMemoryDirectory struct {
	mu     sync.RWMutex
	admins map[domain.UserID]struct{}
}

func NewMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{admins: make(map[domain.UserID]struct{})}
}

func (d *InMemoryDirectory) IsAdmin(_ context.Context, userID domain.UserID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.admins[userID]
	return ok, nil
}

// Grant marks the user as admin.
func (d *InMemoryDirectory) Grant(userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.admins[userID] = struct{}{}
}

// Revoke removes the user's admin grant.
func (d *InMemoryDirectory) Revoke(userID domain.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.admins, userID)
}
