// Package access resolves principals to capability sets and authorizes
// document operations against them. Every decision is made on explicit
// capabilities; nothing branches on role names outside CapabilitiesFor.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/config"
	platformredis "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/redis"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
	derrors "github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain-errors"
)

// AdminDirectory is the role-membership lookup behind the admin flag. It
// is consulted per call; the short-lived cache in front of it is the only
// permitted reuse, so revoked elevation dies within the TTL.
type AdminDirectory interface {
	IsAdmin(ctx context.Context, userID domain.UserID) (bool, error)
}

type Service struct {
	directory AdminDirectory
	cache     *platformredis.Client
	cacheTTL  time.Duration
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithCache installs the short-TTL admin flag cache. A nil client is
// ignored and every resolution hits the directory.
func WithCache(cache *platformredis.Client) Option {
	return func(s *Service) { s.cache = cache }
}

// WithCacheTTL overrides how long a resolved admin flag may be reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

func New(directory AdminDirectory, opts ...Option) (*Service, error) {
	if directory == nil {
		return nil, fmt.Errorf("admin directory is required")
	}

	svc := &Service{
		directory: directory,
		cacheTTL:  config.AdminGrantTTL,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// ResolvePrincipal builds the principal for an authenticated user,
// resolving the admin flag through the directory.
func (s *Service) ResolvePrincipal(ctx context.Context, userID domain.UserID, role domain.Role) (domain.Principal, error) {
	admin, err := s.isAdmin(ctx, userID)
	if err != nil {
		return domain.Principal{}, derrors.Wrap(err, derrors.CodeInternal, "failed to resolve admin status")
	}
	return domain.Principal{UserID: userID, Role: role, Admin: admin}, nil
}

func (s *Service) isAdmin(ctx context.Context, userID domain.UserID) (bool, error) {
	cacheKey := "vault:admin:" + userID.String()
	if s.cache != nil {
		if val, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			return val == "1", nil
		}
	}

	admin, err := s.directory.IsAdmin(ctx, userID)
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		val := "0"
		if admin {
			val = "1"
		}
		if err := s.cache.Set(ctx, cacheKey, val, s.cacheTTL).Err(); err != nil {
			s.logger.WarnContext(ctx, "failed to cache admin flag", "error", err)
		}
	}
	return admin, nil
}

// CanRead reports whether the principal may read the document.
func CanRead(principal domain.Principal, doc *docmodels.Document) bool {
	if doc.Privacy == docmodels.PrivacyPublic {
		return true
	}
	if principal.IsAnonymous() {
		return false
	}
	caps := principal.Capabilities()
	if caps.Has(domain.CapReadAll) {
		return true
	}
	if doc.UserID == principal.UserID && caps.Has(domain.CapReadOwn) {
		return true
	}
	if doc.Privacy == docmodels.PrivacyShared && caps.Has(domain.CapReadShared) && doc.SharedWithUser(principal.UserID) {
		return true
	}
	return false
}

// CanWrite reports whether the principal may mutate the document.
func CanWrite(principal domain.Principal, doc *docmodels.Document) bool {
	if principal.IsAnonymous() {
		return false
	}
	caps := principal.Capabilities()
	if caps.Has(domain.CapWriteAll) {
		return true
	}
	return doc.UserID == principal.UserID && caps.Has(domain.CapWriteOwn)
}

// AuthorizeRead returns a forbidden error unless CanRead holds. A private
// document reads as not found for strangers so existence does not leak.
func (s *Service) AuthorizeRead(principal domain.Principal, doc *docmodels.Document) error {
	if CanRead(principal, doc) {
		return nil
	}
	return derrors.New(derrors.CodeNotFound, "document not found")
}

// AuthorizeWrite returns a forbidden error unless CanWrite holds.
func (s *Service) AuthorizeWrite(principal domain.Principal, doc *docmodels.Document) error {
	if CanWrite(principal, doc) {
		return nil
	}
	return derrors.New(derrors.CodeForbidden, "caller may not modify this document")
}

// AuthorizeStats gates the aggregate statistics surface.
func (s *Service) AuthorizeStats(principal domain.Principal) error {
	if principal.Capabilities().Has(domain.CapReadStats) {
		return nil
	}
	return derrors.New(derrors.CodeForbidden, "aggregate statistics require admin access")
}

// FilterReadable returns the subset of docs the principal may read.
func FilterReadable(principal domain.Principal, docs []*docmodels.Document) []*docmodels.Document {
	out := make([]*docmodels.Document, 0, len(docs))
	for _, doc := range docs {
		if CanRead(principal, doc) {
			out = append(out, doc)
		}
	}
	return out
}
