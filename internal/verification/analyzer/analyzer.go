// Package analyzer is the client for the external document analysis
// capability. The engine never inspects file bytes itself; it hands the
// analyzer a file reference and receives a trust determination.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/config"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/internal/verification/models"
)

// Client is the analyzer contract consumed by the dispatcher.
type Client interface {
	Analyze(ctx context.Context, fileRef string) (models.Outcome, error)
}

// Error is an analyzer failure. Transient failures (network faults, 5xx,
// throttling) earn one retry in the dispatcher; permanent ones fail the
// request immediately.
type Error struct {
	Transient bool
	Status    int
	Message   string
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("analyzer %s error (status %d): %s", kind, e.Status, e.Message)
	}
	return fmt.Sprintf("analyzer %s error: %s", kind, e.Message)
}

// IsTransient reports whether err is a retryable analyzer error.
func IsTransient(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Transient
}

type analyzeRequest struct {
	FileRef string `json:"file_ref"`
}

type analyzeResponse struct {
	Determination   string            `json:"determination"`
	Confidence      float64           `json:"confidence"`
	ExtractedFields map[string]string `json:"extracted_fields"`
	Explanation     string            `json:"explanation"`
}

// HTTPClient talks to the analyzer over its HTTP API.
type HTTPClient struct {
	cfg        config.AnalyzerConfig
	httpClient *http.Client
}

func NewHTTPClient(cfg config.AnalyzerConfig) *HTTPClient {
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Analyze submits the file reference and blocks for the determination. The
// call is bounded by the configured timeout and the caller's context.
func (c *HTTPClient) Analyze(ctx context.Context, fileRef string) (models.Outcome, error) {
	body, err := json.Marshal(analyzeRequest{FileRef: fileRef})
	if err != nil {
		return models.Outcome{}, &Error{Message: fmt.Sprintf("marshal request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return models.Outcome{}, &Error{Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network faults and timeouts are retryable.
		return models.Outcome{}, &Error{Transient: true, Message: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Outcome{}, &Error{Transient: true, Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return models.Outcome{}, &Error{
			Transient: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Status:    resp.StatusCode,
			Message:   string(payload),
		}
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return models.Outcome{}, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("malformed payload: %v", err)}
	}

	outcome, err := toOutcome(parsed)
	if err != nil {
		return models.Outcome{}, &Error{Status: resp.StatusCode, Message: err.Error()}
	}
	return outcome, nil
}

func toOutcome(resp analyzeResponse) (models.Outcome, error) {
	outcome := models.Outcome{
		Determination:   models.Determination(resp.Determination),
		Confidence:      resp.Confidence,
		ExtractedFields: resp.ExtractedFields,
		Explanation:     resp.Explanation,
	}
	if err := outcome.Validate(); err != nil {
		return models.Outcome{}, err
	}
	return outcome, nil
}
