package interfaces

import "context"

// EventName enumerates the SSE event types of §4.3/§6.
type EventName string

const (
	EventJobStatusUpdate EventName = "job_status_update"
	EventEntryCreated    EventName = "entry_created"
	EventLinkUpdated     EventName = "link_updated"
	EventLinksCreated    EventName = "links_created"
	EventPing            EventName = "ping"
	EventOpen            EventName = "open"
)

// Event is one record delivered to a project's subscribers.
type Event struct {
	Name      EventName
	ProjectID string
	Data      map[string]any
}

// Broadcaster is the project-scoped pub/sub fan-out of C3.
type Broadcaster interface {
	// Subscribe returns a channel of events for projectID and a cancel
	// func that unregisters the subscriber; the channel itself is never
	// closed. The channel also receives keep-alive EventPing records per §4.3.
	Subscribe(ctx context.Context, projectID string) (<-chan Event, func())
	// Publish enqueues an event to every live subscriber of projectID
	// using non-blocking push; on queue-full the event is dropped and
	// logged (§4.3).
	Publish(projectID string, name EventName, data map[string]any)
}
