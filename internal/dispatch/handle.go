package dispatch

import (
	"context"
	"sync"

	"github.com/chenmingyu/reverie/backend/internal/emotion"
)

// Outcome classifies how a queued request finished.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeSuperseded  Outcome = "superseded"
	OutcomeSessionGone Outcome = "session_gone"
)

// Result is the terminal state of one queued request.
type Result struct {
	Outcome Outcome
	Reply   string
	Emotion emotion.Emotion
	Cached  bool
	Err     error
}

// Handle is the single-fire completion a caller suspends on. It is honored
// exactly once: success, failure, cancellation or supersession.
type Handle struct {
	done chan Result
	once sync.Once
}

func newHandle() *Handle {
	return &Handle{done: make(chan Result, 1)}
}

// Completed returns an already-resolved handle, used for cache hits so the
// caller sees one uniform shape.
func Completed(res Result) *Handle {
	h := newHandle()
	h.complete(res)
	return h
}

func (h *Handle) complete(res Result) {
	h.once.Do(func() {
		h.done <- res
		close(h.done)
	})
}

// Wait blocks until the request completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case res := <-h.done:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
