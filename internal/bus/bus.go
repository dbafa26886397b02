// Package bus implements the in-process publish/subscribe message bus:
// every event a session produces (assistant text, tool calls and
// results, delegation, suspension, resumption, errors) is published
// here once, persisted to the thread store, and fanned out to whatever
// connectors are currently attached to that session.
package bus

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a bus event.
type Kind string

const (
	KindMessage              Kind = "message"
	KindToolCall             Kind = "tool_call"
	KindToolResult           Kind = "tool_result"
	KindDelegation           Kind = "delegation"
	KindSuspension           Kind = "suspension"
	KindResumption           Kind = "resumption"
	KindError                Kind = "error"
	KindNotification         Kind = "notification"
	KindNotificationResolved Kind = "notification_resolved"
	KindStatus               Kind = "status"
	KindStreamChunk          Kind = "stream_chunk"
	KindStreamEnd            Kind = "stream_end"
	KindEnvDataChange        Kind = "env_data_change"
)

// summaryMaxLen is the cap on Event.Summary: short enough to fit a
// connector's live activity feed on one line.
const summaryMaxLen = 120

// Event is one bus message. Content carries the full, untruncated text
// (what gets persisted to the store); Summary is a short, single-line
// preview derived from Content for feeds that don't want the whole
// thing.
type Event struct {
	ID        string
	SessionID string
	Kind      Kind
	Summary   string
	Content   string
	Extra     map[string]any
	CreatedAt time.Time
}

// Summarize collapses content to a single line capped at
// summaryMaxLen runes, truncating at the last whitespace boundary
// before the cap and appending an ellipsis.
func Summarize(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	if len([]rune(flat)) <= summaryMaxLen {
		return flat
	}
	runes := []rune(flat)
	cut := runes[:summaryMaxLen]
	if idx := strings.LastIndex(string(cut), " "); idx > 0 {
		cut = []rune(string(cut)[:idx])
	}
	return string(cut) + "…"
}

// Subscriber receives published events for sessions it is subscribed
// to. Each subscriber gets its own ordered delivery queue drained by a
// dedicated goroutine, so a slow subscriber only delays itself, never
// the publisher or other subscribers, and each subscriber observes
// events in publish order.
type Subscriber func(Event)

// allSessions is the internal key SubscribeAll registers under; every
// Publish also fans out to it regardless of the event's session.
const allSessions = "*"

// subQueue is one subscriber's ordered, non-blocking delivery queue.
type subQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
	closed bool
	fn     Subscriber
}

func newSubQueue(fn Subscriber) *subQueue {
	q := &subQueue{fn: fn}
	q.cond = sync.NewCond(&q.mu)
	go q.drain()
	return q
}

func (q *subQueue) push(e Event) {
	q.mu.Lock()
	if !q.closed {
		q.events = append(q.events, e)
		q.cond.Signal()
	}
	q.mu.Unlock()
}

func (q *subQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *subQueue) drain() {
	for {
		q.mu.Lock()
		for len(q.events) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.events) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		e := q.events[0]
		q.events = q.events[1:]
		q.mu.Unlock()

		func() {
			defer func() { _ = recover() }()
			q.fn(e)
		}()
	}
}

// Bus fans out events to per-session subscribers and keeps a
// best-effort in-memory tail for reconnect catch-up; durable history
// lives in the thread store, which Publish also writes to via
// Persister.
type Bus struct {
	mu        sync.RWMutex
	subs      map[string]map[int]*subQueue
	nextSubID int
	persister Persister
	tail      map[string][]Event
	tailSize  int
}

// Persister is implemented by the thread store; Publish writes every
// event through it before fanning out, so history survives even with
// no connector attached.
type Persister interface {
	AppendEvent(sessionID string, e Event) error
}

// New creates a Bus. tailSize bounds the in-memory per-session replay
// buffer used for reconnect catch-up (a connector that
// reattaches gets whatever is still in the tail, then falls back to the
// store for anything older).
func New(persister Persister, tailSize int) *Bus {
	if tailSize <= 0 {
		tailSize = 200
	}
	return &Bus{
		subs:      make(map[string]map[int]*subQueue),
		persister: persister,
		tail:      make(map[string][]Event),
		tailSize:  tailSize,
	}
}

// Subscribe registers sub for sessionID and returns an unsubscribe func.
// Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(sessionID string, sub Subscriber) (unsubscribe func()) {
	return b.subscribeKey(sessionID, sub)
}

// SubscribeAll registers sub for every session's events, the feed a
// server broadcasting to front-ends attaches to.
func (b *Bus) SubscribeAll(sub Subscriber) (unsubscribe func()) {
	return b.subscribeKey(allSessions, sub)
}

func (b *Bus) subscribeKey(key string, sub Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]*subQueue)
	}
	id := b.nextSubID
	b.nextSubID++
	q := newSubQueue(sub)
	b.subs[key][id] = q
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.subs[key][id]; ok && cur == q {
			delete(b.subs[key], id)
			q.close()
		}
	}
}

// Publish persists e (if a Persister is configured) and notifies every
// subscriber of e.SessionID, each on its own goroutine.
func (b *Bus) Publish(e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Summary == "" {
		e.Summary = Summarize(e.Content)
	}

	var persistErr error
	if b.persister != nil {
		persistErr = b.persister.AppendEvent(e.SessionID, e)
	}

	b.mu.Lock()
	tail := append(b.tail[e.SessionID], e)
	if len(tail) > b.tailSize {
		tail = tail[len(tail)-b.tailSize:]
	}
	b.tail[e.SessionID] = tail
	queues := make([]*subQueue, 0, len(b.subs[e.SessionID])+len(b.subs[allSessions]))
	for _, q := range b.subs[e.SessionID] {
		queues = append(queues, q)
	}
	for _, q := range b.subs[allSessions] {
		queues = append(queues, q)
	}
	b.mu.Unlock()

	for _, q := range queues {
		q.push(e)
	}

	return persistErr
}

// SubscriberCount reports the number of live subscribers across all
// sessions, including all-session subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, m := range b.subs {
		n += len(m)
	}
	return n
}

// Tail returns the in-memory replay buffer for a session, oldest first.
func (b *Bus) Tail(sessionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.tail[sessionID]))
	copy(out, b.tail[sessionID])
	return out
}

// ActiveSessions lists session IDs with at least one live subscriber,
// sorted for deterministic output in diagnostics/status endpoints.
func (b *Bus) ActiveSessions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.subs))
	for id, subs := range b.subs {
		if id != allSessions && len(subs) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
