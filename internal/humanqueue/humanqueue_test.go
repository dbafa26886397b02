package humanqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueAwaitRespond(t *testing.T) {
	q := New()
	id := q.Enqueue("planner", "deploy to prod?", []string{"yes", "no"})

	pending := q.Pending("planner")
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)
	assert.Equal(t, StatePending, pending[0].State)

	done := make(chan Outcome, 1)
	go func() {
		outcome, err := q.Await(id, nil)
		require.NoError(t, err)
		done <- outcome
	}()

	require.Eventually(t, func() bool {
		r, ok := q.Get(id)
		return ok && r.State == StatePending
	}, time.Second, time.Millisecond)

	require.NoError(t, q.Respond(id, "yes"))

	select {
	case outcome := <-done:
		assert.Equal(t, "yes", outcome.Response)
		assert.False(t, outcome.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Respond")
	}

	assert.Empty(t, q.Pending("planner"))
}

func TestRespondTwiceRejected(t *testing.T) {
	q := New()
	id := q.Enqueue("planner", "continue?", nil)

	require.NoError(t, q.Respond(id, "yes"))
	err := q.Respond(id, "no")
	require.Error(t, err)
}

func TestCancelWakesAwaiter(t *testing.T) {
	q := New()
	id := q.Enqueue("planner", "continue?", nil)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := q.Await(id, nil)
		done <- outcome
	}()

	require.Eventually(t, func() bool {
		r, ok := q.Get(id)
		return ok && r.State == StatePending
	}, time.Second, time.Millisecond)

	require.NoError(t, q.Cancel(id))

	select {
	case outcome := <-done:
		assert.True(t, outcome.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Cancel")
	}
}

func TestAwaitObservesExternalCancellation(t *testing.T) {
	q := New()
	id := q.Enqueue("planner", "continue?", nil)

	cancel := make(chan struct{})
	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := q.Await(id, cancel)
		done <- outcome
	}()

	close(cancel)

	select {
	case outcome := <-done:
		assert.True(t, outcome.Cancelled)
	case <-time.After(time.Second):
		t.Fatal("Await did not observe external cancellation")
	}

	r, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, r.State)
}

func TestAwaitUnknownRequest(t *testing.T) {
	q := New()
	_, err := q.Await("does-not-exist", nil)
	require.Error(t, err)
}

func TestCancelAlreadyResolvedIsNoop(t *testing.T) {
	q := New()
	id := q.Enqueue("planner", "continue?", nil)
	require.NoError(t, q.Respond(id, "yes"))
	require.NoError(t, q.Cancel(id))

	r, ok := q.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateResolved, r.State)
}

func TestPendingFiltersByPO(t *testing.T) {
	q := New()
	q.Enqueue("planner", "a", nil)
	q.Enqueue("researcher", "b", nil)

	assert.Len(t, q.Pending("planner"), 1)
	assert.Len(t, q.Pending("researcher"), 1)
	assert.Len(t, q.Pending(""), 2)
}
