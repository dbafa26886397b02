package bus

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_CapsLengthAndFlattensNewlines(t *testing.T) {
	long := strings.Repeat("some words here ", 40)
	sum := Summarize(long)
	assert.LessOrEqual(t, len([]rune(sum)), summaryMaxLen+1) // +1 for the ellipsis
	assert.NotContains(t, sum, "\n")
	assert.True(t, strings.HasSuffix(sum, "…"))

	multi := "line one\nline two\n\nline three"
	assert.Equal(t, "line one line two line three", Summarize(multi))
}

func TestSummarize_ShortContentUnchanged(t *testing.T) {
	assert.Equal(t, "hello world", Summarize("hello world"))
	assert.Equal(t, "", Summarize(""))
}

func TestPublish_DeliversInOrderPerSubscriber(t *testing.T) {
	b := New(nil, 10)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	b.Subscribe("s1", func(e Event) {
		mu.Lock()
		got = append(got, e.Content)
		if len(got) == 50 {
			close(done)
		}
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(Event{SessionID: "s1", Kind: KindMessage, Content: string(rune('a' + i%26))}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 50; i++ {
		assert.Equal(t, string(rune('a'+i%26)), got[i], "event %d out of order", i)
	}
}

func TestSubscribe_OnlySeesOwnSession(t *testing.T) {
	b := New(nil, 10)

	got := make(chan Event, 10)
	b.Subscribe("mine", func(e Event) { got <- e })

	require.NoError(t, b.Publish(Event{SessionID: "other", Content: "not for me"}))
	require.NoError(t, b.Publish(Event{SessionID: "mine", Content: "for me"}))

	e := <-got
	assert.Equal(t, "for me", e.Content)
	select {
	case e := <-got:
		t.Fatalf("unexpected extra event: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeAll_SeesEverySession(t *testing.T) {
	b := New(nil, 10)

	got := make(chan string, 10)
	b.SubscribeAll(func(e Event) { got <- e.SessionID })

	require.NoError(t, b.Publish(Event{SessionID: "a", Content: "1"}))
	require.NoError(t, b.Publish(Event{SessionID: "b", Content: "2"}))

	assert.Equal(t, "a", <-got)
	assert.Equal(t, "b", <-got)
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	b := New(nil, 10)
	unsub := b.Subscribe("s1", func(Event) {})
	assert.Equal(t, 1, b.SubscriberCount())
	unsub()
	unsub()
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestTail_KeepsLastN(t *testing.T) {
	b := New(nil, 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(Event{SessionID: "s", Content: string(rune('0' + i))}))
	}
	tail := b.Tail("s")
	require.Len(t, tail, 3)
	assert.Equal(t, "2", tail[0].Content)
	assert.Equal(t, "4", tail[2].Content)
}

type capturePersister struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePersister) AppendEvent(sessionID string, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestPublish_WritesThroughPersister(t *testing.T) {
	p := &capturePersister{}
	b := New(p, 10)
	require.NoError(t, b.Publish(Event{SessionID: "s", Content: "persist me"}))
	p.mu.Lock()
	defer p.mu.Unlock()
	require.Len(t, p.events, 1)
	assert.Equal(t, "persist me", p.events[0].Content)
	assert.NotEmpty(t, p.events[0].Summary)
}
