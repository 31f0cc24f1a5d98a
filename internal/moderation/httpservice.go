// Package moderation is the default collab.ModerationService adapter: it
// posts the candidate texts and intimacy stage to a configured HTTP
// endpoint and parses back a single verdict. The scoring rule set itself
// is out of scope; this package only speaks the wire protocol.
package moderation

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"chatcoach/internal/collab"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type request struct {
	Texts         []string `json:"texts"`
	IntimacyStage int      `json:"intimacy_stage"`
}

type response struct {
	Decision string `json:"decision"`
}

// HTTPService calls a moderation endpoint over HTTP.
type HTTPService struct {
	endpoint string
	client   *http.Client
}

// New creates an HTTPService pointed at endpoint.
func New(endpoint string, timeout time.Duration) *HTTPService {
	return &HTTPService{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

var _ collab.ModerationService = (*HTTPService)(nil)

// Check implements collab.ModerationService.
func (s *HTTPService) Check(ctx context.Context, texts []string, intimacyStage int) (collab.ModerationVerdict, error) {
	body, err := json.Marshal(request{Texts: texts, IntimacyStage: intimacyStage})
	if err != nil {
		return "", fmt.Errorf("moderation: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("moderation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("moderation: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("moderation: unexpected status %d", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("moderation: decode response: %w", err)
	}

	switch collab.ModerationVerdict(out.Decision) {
	case collab.ModerationPass, collab.ModerationWarn, collab.ModerationRewrite, collab.ModerationReject:
		return collab.ModerationVerdict(out.Decision), nil
	default:
		return "", fmt.Errorf("moderation: unrecognized decision %q", out.Decision)
	}
}
