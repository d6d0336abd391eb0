// Package inference owns the claim classifier. The classifier runs on a
// single accelerator that executes one inference at a time, so every call
// goes through Model, which admits one caller at a time in arrival order.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Classifier produces the two NLI logits (contradiction, entailment) for a
// paired input.
type Classifier interface {
	Logits(ctx context.Context, input string) ([]float64, error)
}

// Model is the serialized classifier resource.
//
// Waiting callers queue in FIFO order with no timeout. A long queue is
// backpressure, not a hang: adding a deadline here would silently drop work
// that callers are still waiting for. The caller's context still applies, so
// a request whose client went away leaves the queue.
type Model struct {
	sem     *semaphore.Weighted
	backend Classifier
	waiting atomic.Int64
}

func NewModel(backend Classifier) *Model {
	return &Model{sem: semaphore.NewWeighted(1), backend: backend}
}

// ErrBackendPanic is returned when the classifier backend panics.
var ErrBackendPanic = errors.New("classifier backend panicked")

// Predict runs the classifier under the gate and returns its logits. The
// gate is released on every path. A panicking backend is reported as an
// error wrapping ErrBackendPanic.
func (m *Model) Predict(ctx context.Context, input string) (logits []float64, err error) {
	m.waiting.Add(1)
	err = m.sem.Acquire(ctx, 1)
	m.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	defer m.sem.Release(1)
	defer func() {
		if p := recover(); p != nil {
			logits, err = nil, fmt.Errorf("%w: %v", ErrBackendPanic, p)
		}
	}()

	logits, err = m.backend.Logits(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(logits) != 2 {
		return nil, fmt.Errorf("classifier returned %d logits, want 2", len(logits))
	}
	return logits, nil
}

// Waiting reports how many callers are queued for the gate.
func (m *Model) Waiting() int64 {
	return m.waiting.Load()
}

// Softmax converts logits to probabilities. The maximum is subtracted
// before exponentiating so large logits cannot overflow.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return []float64{}
	}
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
