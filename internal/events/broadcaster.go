// Package events implements the project-scoped pub/sub fan-out of C3, with
// per-subscriber bounded queues and keep-alive pings. The broadcast
// concurrency pattern (snapshot subscriber list, then push to each under
// its own lock) is adapted from the donor's websocket handler
// (BroadcastStatus), generalized from a single global connection map to a
// project-keyed subscriber registry with bounded, droppable queues.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/revivalist/lorecard/internal/interfaces"
)

type subscriber struct {
	id   uint64
	ch   chan interfaces.Event
	done chan struct{}
}

// Broadcaster implements interfaces.Broadcaster.
type Broadcaster struct {
	mu           sync.RWMutex
	subscribers  map[string]map[uint64]*subscriber
	queueSize    int
	pingInterval time.Duration
	nextID       uint64
	logger       arbor.ILogger
}

// New constructs a Broadcaster. queueSize bounds each subscriber's channel;
// pingInterval is the keep-alive cadence of §4.3 (15s).
func New(queueSize int, pingInterval time.Duration, logger arbor.ILogger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 32
	}
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &Broadcaster{
		subscribers:  make(map[string]map[uint64]*subscriber),
		queueSize:    queueSize,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Subscribe registers a new subscriber for projectID and starts its
// keep-alive ticker. The returned cancel func unregisters the subscriber
// from future publishes and signals sub.done; it is safe to call more than
// once. sub.ch is deliberately never closed, since an in-flight Publish can
// still hold a reference to sub after unregistering — closing here would
// race a concurrent send and panic. Callers must stop reading in response to
// sub.done (or their own context), not by ranging until the channel closes.
func (b *Broadcaster) Subscribe(ctx context.Context, projectID string) (<-chan interfaces.Event, func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := &subscriber{
		id:   id,
		ch:   make(chan interfaces.Event, b.queueSize),
		done: make(chan struct{}),
	}
	if b.subscribers[projectID] == nil {
		b.subscribers[projectID] = make(map[uint64]*subscriber)
	}
	b.subscribers[projectID][id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(sub.done)
			b.mu.Lock()
			if m, ok := b.subscribers[projectID]; ok {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subscribers, projectID)
				}
			}
			b.mu.Unlock()
		})
	}

	go b.keepAlive(ctx, projectID, sub, cancel)

	return sub.ch, cancel
}

func (b *Broadcaster) keepAlive(ctx context.Context, projectID string, sub *subscriber, cancel func()) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error().Interface("panic", r).Msg("event broadcaster keep-alive panic recovered")
		}
	}()
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			return
		case <-sub.done:
			return
		case <-ticker.C:
			select {
			case sub.ch <- interfaces.Event{Name: interfaces.EventPing, ProjectID: projectID}:
			default:
				if b.logger != nil {
					b.logger.Warn().Str("project_id", projectID).Msg("dropped keep-alive ping, subscriber queue full")
				}
			}
		}
	}
}

// Publish enqueues an event to every live subscriber of projectID. Push is
// non-blocking: a full queue drops the event and logs it (§4.3). Order is
// preserved per-subscriber; cross-subscriber ordering is not guaranteed
// (§5).
func (b *Broadcaster) Publish(projectID string, name interfaces.EventName, data map[string]any) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers[projectID]))
	for _, s := range b.subscribers[projectID] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	if data == nil {
		data = map[string]any{}
	}
	data["project_id"] = projectID
	ev := interfaces.Event{Name: name, ProjectID: projectID, Data: data}

	for _, s := range subs {
		select {
		case s.ch <- ev:
		default:
			if b.logger != nil {
				b.logger.Warn().
					Str("project_id", projectID).
					Str("event", string(name)).
					Msg("dropped event, subscriber queue full")
			}
		}
	}
}
