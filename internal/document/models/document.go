package models

import (
	"fmt"
	"time"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// Kind is the closed enumeration of credential artifact types.
type Kind string

const (
	KindDegree      Kind = "degree"
	KindCertificate Kind = "certificate"
	KindLicense     Kind = "license"
	KindReference   Kind = "reference"
	KindWorkSample  Kind = "work_sample"
	KindResume      Kind = "resume"
	KindTranscript  Kind = "transcript"
	KindIdentity    Kind = "identity_document"
	KindOther       Kind = "other"
)

// ParseKind validates a document kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindDegree, KindCertificate, KindLicense, KindReference,
		KindWorkSample, KindResume, KindTranscript, KindIdentity, KindOther:
		return k, nil
	default:
		return "", fmt.Errorf("unknown document kind: %s", s)
	}
}

// Status is the document trust status. It is derived from verification
// outcomes; clients never write it directly.
type Status string

const (
	StatusUploaded        Status = "uploaded"
	StatusPending         Status = "pending"
	StatusVerified        Status = "verified"
	StatusFailed          Status = "failed"
	StatusPartialVerified Status = "partial_verified"
	// StatusExpired is derived at read time from ExpiryDate and never
	// persisted.
	StatusExpired Status = "expired"
)

// Privacy controls who may read a document beyond its owner.
type Privacy string

const (
	PrivacyPrivate Privacy = "private"
	PrivacyShared  Privacy = "shared"
	PrivacyPublic  Privacy = "public"
)

// ParsePrivacy validates a privacy setting.
func ParsePrivacy(s string) (Privacy, error) {
	switch p := Privacy(s); p {
	case PrivacyPrivate, PrivacyShared, PrivacyPublic:
		return p, nil
	default:
		return "", fmt.Errorf("unknown privacy setting: %s", s)
	}
}

// Document describes one uploaded credential artifact. File bytes live in
// the blob store; the document holds only the reference.
type Document struct {
	ID            domain.DocumentID
	UserID        domain.UserID
	Name          string
	Kind          Kind
	Issuer        string
	InstitutionID *domain.UserID
	FileRef       string
	FileSize      int64
	FileType      string
	UploadedAt    time.Time
	ExpiryDate    *time.Time
	Status        Status
	Privacy       Privacy
	// SharedWith lists principals the owner explicitly designated for
	// shared visibility. Ignored unless Privacy is shared.
	SharedWith []domain.UserID
	Metadata   map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EffectiveStatus returns the status a reader should see at now. Expiry
// wins over any verification outcome but is never written back.
func (d *Document) EffectiveStatus(now time.Time) Status {
	if d.ExpiryDate != nil && !d.ExpiryDate.After(now) {
		return StatusExpired
	}
	return d.Status
}

// SharedWithUser reports whether userID is on the designee list.
func (d *Document) SharedWithUser(userID domain.UserID) bool {
	for _, id := range d.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}
