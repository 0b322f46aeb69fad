package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revivalist/lorecard/internal/interfaces"
)

func TestPublish_DeliversToSubscriber(t *testing.T) {
	b := New(8, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := b.Subscribe(ctx, "proj1")
	defer unsub()

	b.Publish("proj1", interfaces.EventEntryCreated, map[string]any{"entry_id": "e1"})

	select {
	case ev := <-ch:
		assert.Equal(t, interfaces.EventEntryCreated, ev.Name)
		assert.Equal(t, "proj1", ev.Data["project_id"])
		assert.Equal(t, "e1", ev.Data["entry_id"])
	case <-time.After(time.Second):
		t.Fatal("expected event not received")
	}
}

func TestPublish_DoesNotCrossProjects(t *testing.T) {
	b := New(8, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA, unsubA := b.Subscribe(ctx, "A")
	defer unsubA()
	chB, unsubB := b.Subscribe(ctx, "B")
	defer unsubB()

	b.Publish("A", interfaces.EventLinkUpdated, nil)

	select {
	case ev := <-chA:
		assert.Equal(t, interfaces.EventLinkUpdated, ev.Name)
	case <-time.After(time.Second):
		t.Fatal("project A should have received its event")
	}

	select {
	case <-chB:
		t.Fatal("project B should not receive project A's event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublish_DropsOnFullQueueWithoutBlocking(t *testing.T) {
	b := New(1, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := b.Subscribe(ctx, "proj")
	defer unsub()

	b.Publish("proj", interfaces.EventLinksCreated, nil)
	done := make(chan struct{})
	go func() {
		b.Publish("proj", interfaces.EventLinksCreated, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must not block when subscriber queue is full")
	}

	<-ch
}

func TestPublish_ConcurrentWithCancelDoesNotPanic(t *testing.T) {
	b := New(8, time.Hour, nil)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		_, unsub := b.Subscribe(ctx, "proj")

		done := make(chan struct{})
		go func() {
			defer close(done)
			b.Publish("proj", interfaces.EventLinkUpdated, nil)
		}()

		unsub()
		<-done
	}
}

func TestSubscribe_CancelUnregisters(t *testing.T) {
	b := New(8, time.Hour, nil)
	ctx := context.Background()

	_, unsub := b.Subscribe(ctx, "proj")
	unsub()

	b.mu.RLock()
	_, exists := b.subscribers["proj"]
	b.mu.RUnlock()
	require.False(t, exists, "subscriber map for project should be cleaned up after unsubscribe")
}
