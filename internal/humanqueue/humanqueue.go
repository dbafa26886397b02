// Package humanqueue implements the human-in-the-loop queue: the
// correlation layer between a suspended ask_human tool call and the
// asynchronous response a front-end eventually delivers.
package humanqueue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/promptobjects/core/internal/poerr"
)

// State is a HumanRequest's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateResolved  State = "resolved"
	StateCancelled State = "cancelled"
)

// Request is one pending ask_human call
type Request struct {
	ID        string
	PONname   string
	Question  string
	Options   []string
	State     State
	Response  string
	CreatedAt time.Time
}

// Outcome is delivered to whatever goroutine is awaiting a Request's
// resolution: either a human response or a cancellation.
type Outcome struct {
	Response  string
	Cancelled bool
}

// Queue is the process-wide pending-request registry.
type Queue struct {
	mu       sync.Mutex
	requests map[string]*Request
	waiters  map[string]chan Outcome
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		requests: make(map[string]*Request),
		waiters:  make(map[string]chan Outcome),
	}
}

// Enqueue registers a new pending request and returns its ID. The
// caller then blocks on Await(id) to suspend the current turn.
func (q *Queue) Enqueue(poName, question string, options []string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	q.requests[id] = &Request{
		ID:        id,
		PONname:   poName,
		Question:  question,
		Options:   options,
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	q.waiters[id] = make(chan Outcome, 1)
	return id
}

// Await blocks until request id is resolved or cancelled, or ctxDone
// fires first (cooperative cancellation). A nil ctxDone never
// fires.
func (q *Queue) Await(id string, ctxDone <-chan struct{}) (Outcome, error) {
	q.mu.Lock()
	ch, ok := q.waiters[id]
	q.mu.Unlock()
	if !ok {
		return Outcome{}, poerr.New(poerr.KindNotFound, "no pending human request: "+id)
	}
	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctxDone:
		q.Cancel(id)
		return Outcome{Cancelled: true}, nil
	}
}

// Pending lists pending requests, optionally filtered by PO name.
func (q *Queue) Pending(poName string) []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Request
	for _, r := range q.requests {
		if r.State != StatePending {
			continue
		}
		if poName != "" && r.PONname != poName {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// Get returns one request by ID.
func (q *Queue) Get(id string) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.requests[id]
	if !ok {
		return Request{}, false
	}
	return *r, true
}

// Respond resolves a pending request and delivers response to its
// waiter. A second Respond on the same request is rejected without
// side effect.
func (q *Queue) Respond(id, response string) error {
	q.mu.Lock()
	r, ok := q.requests[id]
	if !ok {
		q.mu.Unlock()
		return poerr.New(poerr.KindNotFound, "no pending human request: "+id)
	}
	if r.State != StatePending {
		q.mu.Unlock()
		return poerr.New(poerr.KindInvalidInput, "human request already "+string(r.State)+": "+id)
	}
	r.State = StateResolved
	r.Response = response
	ch := q.waiters[id]
	q.mu.Unlock()

	select {
	case ch <- Outcome{Response: response}:
	default:
	}
	return nil
}

// Cancel marks a pending request cancelled and wakes its waiter with a
// cancellation outcome. Cancelling an already-resolved request is a
// no-op.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	r, ok := q.requests[id]
	if !ok {
		q.mu.Unlock()
		return poerr.New(poerr.KindNotFound, "no pending human request: "+id)
	}
	if r.State != StatePending {
		q.mu.Unlock()
		return nil
	}
	r.State = StateCancelled
	ch := q.waiters[id]
	q.mu.Unlock()

	select {
	case ch <- Outcome{Cancelled: true}:
	default:
	}
	return nil
}
