package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusInProgress},
		{StatusPending, StatusCancelled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusFailed},
		{StatusInProgress, StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct{ from, to Status }{
		{StatusPending, StatusCompleted},
		{StatusPending, StatusFailed},
		{StatusCompleted, StatusInProgress},
		{StatusCompleted, StatusCancelled},
		{StatusFailed, StatusInProgress},
		{StatusCancelled, StatusInProgress},
		{StatusInProgress, StatusPending},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestParseRequestKind(t *testing.T) {
	kind, err := ParseRequestKind("ai_analysis")
	require.NoError(t, err)
	assert.Equal(t, KindAIAnalysis, kind)

	_, err = ParseRequestKind("palm_reading")
	require.Error(t, err)
}

func TestOutcomeValidate(t *testing.T) {
	valid := []Outcome{
		{Determination: DeterminationPositive, Confidence: 0.95},
		{Determination: DeterminationNegative, Confidence: 0},
		{Determination: DeterminationAmbiguous, Confidence: 1},
	}
	for _, out := range valid {
		assert.NoError(t, out.Validate(), "%+v", out)
	}

	invalid := []Outcome{
		{Determination: "alien-verdict", Confidence: 0.5},
		{Determination: "", Confidence: 0.5},
		{Determination: DeterminationPositive, Confidence: 7.5},
		{Determination: DeterminationPositive, Confidence: -0.1},
	}
	for _, out := range invalid {
		assert.Error(t, out.Validate(), "%+v", out)
	}
}

func TestDocumentStatusFor(t *testing.T) {
	const threshold = 0.80

	t.Run("confident positive verifies", func(t *testing.T) {
		out := Outcome{Determination: DeterminationPositive, Confidence: 0.95}
		assert.Equal(t, docmodels.StatusVerified, DocumentStatusFor(out, threshold))
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		out := Outcome{Determination: DeterminationPositive, Confidence: threshold}
		assert.Equal(t, docmodels.StatusVerified, DocumentStatusFor(out, threshold))
	})

	t.Run("weak positive is partial", func(t *testing.T) {
		out := Outcome{Determination: DeterminationPositive, Confidence: 0.40}
		assert.Equal(t, docmodels.StatusPartialVerified, DocumentStatusFor(out, threshold))
	})

	t.Run("ambiguous is partial regardless of confidence", func(t *testing.T) {
		out := Outcome{Determination: DeterminationAmbiguous, Confidence: 0.99}
		assert.Equal(t, docmodels.StatusPartialVerified, DocumentStatusFor(out, threshold))
	})

	t.Run("negative fails", func(t *testing.T) {
		out := Outcome{Determination: DeterminationNegative, Confidence: 0.99}
		assert.Equal(t, docmodels.StatusFailed, DocumentStatusFor(out, threshold))
	})
}
