package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrClassificationUnavailable covers every transport, decode, and timeout
// failure of the remote classifier. Callers fall through to the local
// analyzer; the error never reaches the routing caller.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// Classification is the remote intent classifier's verdict.
type Classification struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	ModelHint  string  `json:"model_hint,omitempty"`
	NextAction string  `json:"next_action"`
}

// Classifier is the remote intent-classification capability. Implementations
// must honor context cancellation; a slow backend must never block routing.
type Classifier interface {
	Classify(ctx context.Context, query string) (*Classification, error)
}

// DefaultClassifyTimeout bounds the remote call. On expiry the caller treats
// the result identically to any other classification failure.
const DefaultClassifyTimeout = 2 * time.Second

// HTTPClassifier calls the backend intent-classification endpoint.
type HTTPClassifier struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPClassifier creates a classifier client for the given endpoint.
// A zero timeout uses DefaultClassifyTimeout.
func NewHTTPClassifier(endpoint string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	return &HTTPClassifier{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

// Classify posts the query text and decodes the intent verdict. Every
// failure mode collapses into ErrClassificationUnavailable.
func (c *HTTPClassifier) Classify(ctx context.Context, query string) (*Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrClassificationUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrClassificationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrClassificationUnavailable, resp.StatusCode)
	}

	var result Classification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrClassificationUnavailable, err)
	}
	return &result, nil
}
