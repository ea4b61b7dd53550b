// Package dispatch drains pending generation requests against the external
// API's concurrency budget. A bounded worker pool pops a priority heap; per
// session there is at most one request queued and at most one in flight, so
// replies always land in causal order.
package dispatch

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/chenmingyu/reverie/backend/internal/archive"
	"github.com/chenmingyu/reverie/backend/internal/cache"
	"github.com/chenmingyu/reverie/backend/internal/emotion"
	"github.com/chenmingyu/reverie/backend/internal/generate"
	"github.com/chenmingyu/reverie/backend/internal/model/chat"
	"github.com/chenmingyu/reverie/backend/internal/session"
)

var (
	// ErrQueueFull is the backpressure error returned when the depth cap is
	// reached; the transport layer decides whether to inform the user.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrStopped is returned for enqueues after shutdown began.
	ErrStopped = errors.New("dispatcher stopped")
	// ErrTimeout is the terminal error after the retry budget is exhausted.
	ErrTimeout = errors.New("generation timed out")
)

// Priority orders queue draining; lower values drain first.
type Priority int

const (
	// PriorityDirect is used for one-on-one chats.
	PriorityDirect Priority = 0
	// PriorityGroup is used for group-room broadcasts.
	PriorityGroup Priority = 10
)

// Request is one unit of pending generation work. The facade fills the
// exported fields; the queue owns the rest.
type Request struct {
	SessionID     string
	CharacterID   string
	CharacterName string
	Text          string
	SpeakerName   string
	Priority      Priority
	Mood          emotion.Emotion
	Fingerprint   string
	Deadline      time.Time

	seq    uint64
	index  int
	handle *Handle
}

// Config tunes the dispatcher. Zero values fall back to defaults.
type Config struct {
	Workers        int
	MaxDepth       int
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 64
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

// Queue is the priority dispatch queue. Construct with New, start with
// Start, and Stop on shutdown so outstanding handles never dangle.
type Queue struct {
	cfg      Config
	gen      generate.Generator
	sessions *session.Store
	cache    *cache.Cache
	archiver *archive.Writer

	mu       sync.Mutex
	cond     *sync.Cond
	pending  requestHeap
	queued   map[string]*Request            // queued, not yet popped, one per session
	parked   map[string]*Request            // popped while the session was busy
	inflight map[string]context.CancelFunc  // dispatched, cancellable
	seq      uint64
	closed   bool

	wg sync.WaitGroup
}

// New builds a Queue over the shared stores and the generation client.
func New(cfg Config, gen generate.Generator, sessions *session.Store, responses *cache.Cache, archiver *archive.Writer) *Queue {
	q := &Queue{
		cfg:      cfg.withDefaults(),
		gen:      gen,
		sessions: sessions,
		cache:    responses,
		archiver: archiver,
		queued:   make(map[string]*Request),
		parked:   make(map[string]*Request),
		inflight: make(map[string]context.CancelFunc),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop drains the pool and completes every outstanding request with a
// cancelled outcome. Safe to call once; enqueues after Stop fail fast.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true

	var orphans []*Request
	for q.pending.Len() > 0 {
		orphans = append(orphans, heap.Pop(&q.pending).(*Request))
	}
	for _, r := range q.parked {
		orphans = append(orphans, r)
	}
	q.queued = make(map[string]*Request)
	q.parked = make(map[string]*Request)
	for _, cancel := range q.inflight {
		cancel()
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, r := range orphans {
		r.handle.complete(Result{Outcome: OutcomeCancelled})
	}
	q.wg.Wait()
}

// Enqueue admits a request and returns its completion handle. A newer
// message for a session supersedes the session's still-queued request; the
// depth cap produces ErrQueueFull.
func (q *Queue) Enqueue(r *Request) (*Handle, error) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return nil, ErrStopped
	}

	var superseded *Request
	if old := q.queued[r.SessionID]; old != nil {
		heap.Remove(&q.pending, old.index)
		delete(q.queued, r.SessionID)
		superseded = old
	} else if old := q.parked[r.SessionID]; old != nil {
		delete(q.parked, r.SessionID)
		superseded = old
	}

	if q.pending.Len()+len(q.parked) >= q.cfg.MaxDepth {
		q.mu.Unlock()
		if superseded != nil {
			superseded.handle.complete(Result{Outcome: OutcomeSuperseded})
		}
		return nil, ErrQueueFull
	}

	q.seq++
	r.seq = q.seq
	r.handle = newHandle()
	heap.Push(&q.pending, r)
	q.queued[r.SessionID] = r
	q.cond.Signal()
	q.mu.Unlock()

	if superseded != nil {
		superseded.handle.complete(Result{Outcome: OutcomeSuperseded})
	}
	return r.handle, nil
}

// Cancel completes any queued or parked request for sessionID with a
// cancelled outcome and aborts its in-flight dispatch. Registered as the
// session store's close hook.
func (q *Queue) Cancel(sessionID string) {
	q.mu.Lock()
	var victims []*Request
	if r := q.queued[sessionID]; r != nil {
		heap.Remove(&q.pending, r.index)
		delete(q.queued, sessionID)
		victims = append(victims, r)
	}
	if r := q.parked[sessionID]; r != nil {
		delete(q.parked, sessionID)
		victims = append(victims, r)
	}
	cancel := q.inflight[sessionID]
	q.mu.Unlock()

	for _, r := range victims {
		r.handle.complete(Result{Outcome: OutcomeCancelled})
	}
	if cancel != nil {
		cancel()
	}
}

// Depth reports how many requests are waiting (queued plus parked).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len() + len(q.parked)
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		r := q.pop()
		if r == nil {
			return
		}
		q.dispatch(ctx, r)
		q.release(r.SessionID)
	}
}

// pop blocks for the most urgent dispatchable request. Requests whose
// session already has an in-flight dispatch are parked, keeping the
// at-most-one-in-flight invariant without stalling other sessions.
func (q *Queue) pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return nil
		}
		for q.pending.Len() > 0 {
			r := heap.Pop(&q.pending).(*Request)
			delete(q.queued, r.SessionID)
			if _, busy := q.inflight[r.SessionID]; busy {
				q.parked[r.SessionID] = r
				continue
			}
			q.inflight[r.SessionID] = func() {}
			return r
		}
		q.cond.Wait()
	}
}

// release retires a finished dispatch and requeues the session's parked
// request, if any, so its reply follows in order.
func (q *Queue) release(sessionID string) {
	q.mu.Lock()
	delete(q.inflight, sessionID)
	if r := q.parked[sessionID]; r != nil {
		delete(q.parked, sessionID)
		heap.Push(&q.pending, r)
		q.queued[sessionID] = r
	}
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *Queue) dispatch(ctx context.Context, r *Request) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		r.handle.complete(Result{Outcome: OutcomeCancelled})
		return
	}
	q.inflight[r.SessionID] = cancel
	q.mu.Unlock()

	sess, err := q.sessions.Get(r.SessionID)
	if err != nil {
		r.handle.complete(Result{Outcome: OutcomeSessionGone, Err: err})
		return
	}

	prompt := generate.BuildPrompt(sess.History, r.Mood)

	backoff := q.cfg.BaseBackoff
	for attempt := 0; ; attempt++ {
		deadline := r.Deadline
		if deadline.IsZero() {
			deadline = time.Now().Add(q.cfg.RequestTimeout)
			r.Deadline = deadline
		}
		attemptCtx, attemptCancel := context.WithDeadline(reqCtx, deadline)
		reply, err := q.gen.Generate(attemptCtx, sess.Model, prompt)
		attemptCancel()

		if err == nil {
			q.succeed(r, sess, reply)
			return
		}
		if reqCtx.Err() != nil {
			// Session closed or dispatcher stopping.
			r.handle.complete(Result{Outcome: OutcomeCancelled})
			return
		}
		if !generate.IsTransient(err) {
			r.handle.complete(Result{Outcome: OutcomeFailed, Err: err})
			return
		}
		if attempt >= q.cfg.MaxRetries {
			r.handle.complete(Result{
				Outcome: OutcomeFailed,
				Err:     fmt.Errorf("%w after %d attempts: %v", ErrTimeout, attempt+1, err),
			})
			return
		}
		if time.Now().After(deadline) {
			r.handle.complete(Result{
				Outcome: OutcomeFailed,
				Err:     fmt.Errorf("%w: deadline exceeded: %v", ErrTimeout, err),
			})
			return
		}

		log.Printf("[dispatch] transient failure for session=%s attempt=%d: %v", r.SessionID, attempt+1, err)
		wait := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
		select {
		case <-time.After(wait):
		case <-reqCtx.Done():
			r.handle.complete(Result{Outcome: OutcomeCancelled})
			return
		}
		backoff *= 2
		if backoff > q.cfg.MaxBackoff {
			backoff = q.cfg.MaxBackoff
		}
	}
}

// succeed records a generated reply: cache entry, assistant turn, advanced
// emotion, archive write-through, then the caller's handle.
func (q *Queue) succeed(r *Request, sess chat.Session, reply string) {
	q.cache.Store(r.Fingerprint, r.SessionID, reply, r.Mood)

	next := emotion.Next(r.Mood, reply)
	if _, err := q.sessions.AppendMessage(r.SessionID, chat.Message{
		Role:        chat.RoleAssistant,
		Content:     reply,
		SpeakerName: r.CharacterName,
		Emotion:     string(next),
	}); err != nil {
		// Closed after generation finished; the reply has no home.
		r.handle.complete(Result{Outcome: OutcomeCancelled})
		return
	}
	if err := q.sessions.SetEmotion(r.SessionID, next); err != nil {
		log.Printf("[dispatch] failed to set emotion for session=%s: %v", r.SessionID, err)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		q.archiver.Record(ctx, r.SessionID, sess.CharacterID, string(chat.RoleAssistant), r.CharacterName, reply, string(next))
	}()

	r.handle.complete(Result{Outcome: OutcomeSuccess, Reply: reply, Emotion: next})
}
