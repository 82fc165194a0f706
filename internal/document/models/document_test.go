package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no expiry keeps stored status", func(t *testing.T) {
		doc := &Document{Status: StatusVerified}
		assert.Equal(t, StatusVerified, doc.EffectiveStatus(now))
	})

	t.Run("past expiry overrides verified", func(t *testing.T) {
		past := now.Add(-24 * time.Hour)
		doc := &Document{Status: StatusVerified, ExpiryDate: &past}
		assert.Equal(t, StatusExpired, doc.EffectiveStatus(now))
		// The stored status is untouched.
		assert.Equal(t, StatusVerified, doc.Status)
	})

	t.Run("future expiry keeps stored status", func(t *testing.T) {
		future := now.Add(24 * time.Hour)
		doc := &Document{Status: StatusPending, ExpiryDate: &future}
		assert.Equal(t, StatusPending, doc.EffectiveStatus(now))
	})

	t.Run("expiry at the instant counts as expired", func(t *testing.T) {
		doc := &Document{Status: StatusUploaded, ExpiryDate: &now}
		assert.Equal(t, StatusExpired, doc.EffectiveStatus(now))
	})
}

func TestSharedWithUser(t *testing.T) {
	alice := domain.NewUserID()
	bob := domain.NewUserID()
	doc := &Document{Privacy: PrivacyShared, SharedWith: []domain.UserID{alice}}

	assert.True(t, doc.SharedWithUser(alice))
	assert.False(t, doc.SharedWithUser(bob))
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"degree", "certificate", "license", "reference",
		"work_sample", "resume", "transcript", "identity_document", "other"} {
		_, err := ParseKind(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseKind("diploma")
	assert.Error(t, err)
}

func TestParsePrivacy(t *testing.T) {
	for _, valid := range []string{"private", "shared", "public"} {
		_, err := ParsePrivacy(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParsePrivacy("hidden")
	assert.Error(t, err)
}
