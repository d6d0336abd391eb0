// Package embedding turns text into vectors for memory storage and search.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/sethvargo/go-retry"
)

const DefaultOllamaURL = "http://localhost:11434"

// Ollama embeds text with a local Ollama server. Transient failures
// (connection errors and 5xx answers) are retried with exponential backoff.
type Ollama struct {
	client  *ollama.Client
	model   string
	retries uint64
	backoff time.Duration
}

func NewOllama(model, baseURL string, timeout time.Duration) (*Ollama, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return &Ollama{
		client:  ollama.NewClient(u, &http.Client{Timeout: timeout}),
		model:   model,
		retries: 2,
		backoff: 200 * time.Millisecond,
	}, nil
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	b := retry.WithMaxRetries(o.retries, retry.NewExponential(o.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		resp, err := o.client.Embed(ctx, &ollama.EmbedRequest{Model: o.model, Input: text})
		if err != nil {
			if transient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		if len(resp.Embeddings) == 0 {
			return errors.New("no embeddings returned")
		}
		vec = resp.Embeddings[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vec, nil
}

func transient(err error) bool {
	var se ollama.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
