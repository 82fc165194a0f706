package models

import (
	"fmt"
	"time"

	docmodels "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/document/models"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

// RequestKind is how a verification attempt establishes trust.
type RequestKind string

const (
	KindAIAnalysis        RequestKind = "ai_analysis"
	KindInstitutionVerify RequestKind = "institution_verify"
	KindManualReview      RequestKind = "manual_review"
)

// ParseRequestKind validates a request kind.
func ParseRequestKind(s string) (RequestKind, error) {
	switch k := RequestKind(s); k {
	case KindAIAnalysis, KindInstitutionVerify, KindManualReview:
		return k, nil
	default:
		return "", fmt.Errorf("unknown request kind: %s", s)
	}
}

// Status is the lifecycle state of one verification request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the edge from → to is part of the state
// machine. Anything out of a terminal state is rejected.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

// VerificationRequest is one attempt to verify a document. It is owned by
// its parent document and never outlives it.
type VerificationRequest struct {
	ID          domain.RequestID
	DocumentID  domain.DocumentID
	UserID      domain.UserID
	Kind        RequestKind
	Status      Status
	Priority    int
	RequestedAt time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	// ResultStatus is the document status this request produced when it
	// completed. The aggregation reporter groups by it.
	ResultStatus *docmodels.Status
	// Metadata holds analyzer output (extracted fields, confidence,
	// explanation) and error details for failed requests.
	Metadata map[string]any
}

// Determination is the analyzer's trust verdict.
type Determination string

const (
	DeterminationPositive  Determination = "positive"
	DeterminationNegative  Determination = "negative"
	DeterminationAmbiguous Determination = "ambiguous"
)

// Outcome is a completed analysis result.
type Outcome struct {
	Determination   Determination
	Confidence      float64
	ExtractedFields map[string]string
	Explanation     string
}

// Validate rejects outcomes outside the analyzer contract. Every ingestion
// path must call it before the outcome reaches a state transition.
func (o Outcome) Validate() error {
	switch o.Determination {
	case DeterminationPositive, DeterminationNegative, DeterminationAmbiguous:
	default:
		return fmt.Errorf("unknown determination %q", o.Determination)
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", o.Confidence)
	}
	return nil
}

// DocumentStatusFor maps a completed outcome to the parent document status.
// Positive determinations need confidence at or above threshold to count as
// verified; below it, or on an ambiguous verdict (partial match, suspected
// tampering), the document lands on partial_verified. Negative verdicts
// fail the document outright.
func DocumentStatusFor(o Outcome, threshold float64) docmodels.Status {
	switch o.Determination {
	case DeterminationPositive:
		if o.Confidence >= threshold {
			return docmodels.StatusVerified
		}
		return docmodels.StatusPartialVerified
	case DeterminationAmbiguous:
		return docmodels.StatusPartialVerified
	default:
		return docmodels.StatusFailed
	}
}
