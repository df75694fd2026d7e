package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danl5/bgpfsm/pkg/model"
)

func TestQueue_FIFOOrdering(t *testing.T) {
	q := New()
	q.Enqueue(model.Event{Kind: model.EventStart})
	q.Enqueue(model.Event{Kind: model.EventAdminDown})
	q.Enqueue(model.Event{Kind: model.EventConnectTimerExpired})

	require.Equal(t, 3, q.Len())

	var got []model.EventKind
	for {
		ev, ok := q.Dequeue()
		if !ok {
			break
		}
		got = append(got, ev.Kind)
	}

	assert.Equal(t, []model.EventKind{
		model.EventStart,
		model.EventAdminDown,
		model.EventConnectTimerExpired,
	}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DequeueEmptyReturnsFalse(t *testing.T) {
	q := New()
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestQueue_SignalFiresOnEnqueue(t *testing.T) {
	q := New()
	q.Enqueue(model.Event{Kind: model.EventStart})

	select {
	case <-q.Signal():
	default:
		t.Fatal("expected a pending signal after Enqueue")
	}
}

func TestQueue_SignalCoalescesMultipleEnqueues(t *testing.T) {
	q := New()
	q.Enqueue(model.Event{Kind: model.EventStart})
	q.Enqueue(model.Event{Kind: model.EventAdminDown})

	// Signal never buffers more than one pending wakeup; the consumer is
	// expected to drain with Dequeue until it returns false, not to count
	// signals against enqueued events.
	select {
	case <-q.Signal():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Signal():
		t.Fatal("signal channel should not have a second pending wakeup")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestQueue_CloseDropsSubsequentEnqueues(t *testing.T) {
	q := New()
	q.Enqueue(model.Event{Kind: model.EventStart})
	q.Close()
	q.Enqueue(model.Event{Kind: model.EventAdminDown})

	require.Equal(t, 1, q.Len())
	ev, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, model.EventStart, ev.Kind)

	_, ok = q.Dequeue()
	assert.False(t, ok, "only the pre-Close event should have been queued")
}

func TestQueue_CloseLeavesAlreadyQueuedEventsDrainable(t *testing.T) {
	q := New()
	q.Enqueue(model.Event{Kind: model.EventStart})
	q.Enqueue(model.Event{Kind: model.EventAdminDown})
	q.Close()

	require.Equal(t, 2, q.Len())
	_, ok := q.Dequeue()
	require.True(t, ok)
	_, ok = q.Dequeue()
	require.True(t, ok)
}
