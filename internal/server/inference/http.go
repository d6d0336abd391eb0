package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClassifier calls a model server that accepts {"inputs": "..."} and
// answers {"logits": [contradiction, entailment]}.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{url: url, client: &http.Client{Timeout: timeout}}
}

type classifyRequest struct {
	Inputs string `json:"inputs"`
}

type classifyResponse struct {
	Logits []float64 `json:"logits"`
	Error  string    `json:"error,omitempty"`
}

func (c *HTTPClassifier) Logits(ctx context.Context, input string) ([]float64, error) {
	body, err := json.Marshal(classifyRequest{Inputs: input})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("classifier response: %w", err)
	}

	var out classifyResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("classifier: status %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("classifier: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("classifier response: %w", decodeErr)
	}
	return out.Logits, nil
}
