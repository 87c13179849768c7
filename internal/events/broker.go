// Package events carries workflow and error-handling notifications from the
// engine to observers and streaming subscribers.
package events

import (
	"slices"
	"sync"
	"time"
)

// Kind identifies an event type.
type Kind string

// Event kinds.
const (
	KindProgress            Kind = "progress"
	KindWorkflowError       Kind = "workflow_error"
	KindWorkflowUpdated     Kind = "workflow_updated"
	KindCalculationsUpdated Kind = "calculations_updated"
	KindUserFeedback        Kind = "user_feedback"
	KindProgressStart       Kind = "progress_start"
	KindProgressUpdate      Kind = "progress_update"
	KindProgressEnd         Kind = "progress_end"
)

// subscriberBufferSize is the channel buffer for each stream subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 256

// Event is a single notification. WorkflowID is empty for events not tied
// to a workflow (for example standalone error feedback). Segment counts the
// parameter re-runs of a workflow; progress is non-decreasing within one
// segment.
type Event struct {
	Kind       Kind           `json:"kind"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Progress   float64        `json:"progress,omitempty"`
	Segment    int            `json:"segment,omitempty"`
	Step       string         `json:"step,omitempty"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Time       time.Time      `json:"time"`
}

// Broker fans events out to synchronous observers and per-workflow stream
// subscribers. It is safe for concurrent use.
//
// Observers are invoked in publish order on the publishing goroutine, so a
// publisher that serialises its own Publish calls gets ordered delivery.
// Stream subscribers are buffered and lossy.
//
// Closed topics are retained as markers so that late subscribers receive a
// closed channel instead of blocking forever.
type Broker struct {
	mu        sync.Mutex
	topics    map[string]*topic
	observers map[int]observer
	nextObs   int
}

type observer struct {
	fn    func(Event)
	kinds []Kind
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		topics:    make(map[string]*topic),
		observers: make(map[int]observer),
	}
}

// Observe registers fn for the given kinds (all kinds when none are given)
// and returns a function that removes the registration.
func (b *Broker) Observe(fn func(Event), kinds ...Kind) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextObs
	b.nextObs++
	b.observers[id] = observer{fn: fn, kinds: kinds}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.observers, id)
	}
}

// Subscribe returns a channel that receives events for the given workflow
// and an unsubscribe function. If the workflow has already finished (Close
// was called), the returned channel is immediately closed.
func (b *Broker) Subscribe(workflowID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[workflowID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		b.topics[workflowID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
	}
}

// Publish delivers ev to matching observers and, when ev belongs to a
// workflow, to that workflow's stream subscribers.
func (b *Broker) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	b.mu.Lock()
	ids := make([]int, 0, len(b.observers))
	for id := range b.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	matched := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		o := b.observers[id]
		if len(o.kinds) == 0 || slices.Contains(o.kinds, ev.Kind) {
			matched = append(matched, o.fn)
		}
	}

	if t, ok := b.topics[ev.WorkflowID]; ok && ev.WorkflowID != "" && !t.closed {
		for _, ch := range t.subs {
			select {
			case ch <- ev:
			default:
				// Drop for slow subscribers to avoid blocking the workflow.
			}
		}
	}
	b.mu.Unlock()

	// Observers run outside the lock so they may publish or subscribe.
	for _, fn := range matched {
		fn(ev)
	}
}

// Close signals that no more events will be published for the given
// workflow. All subscriber channels are closed and future Subscribe calls
// return a closed channel.
func (b *Broker) Close(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[workflowID]
	if !ok {
		b.topics[workflowID] = &topic{subs: make(map[int]chan Event), closed: true}
		return
	}

	t.closed = true
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Reopen clears a closed marker so a finished workflow can stream again,
// as happens when a parameter change re-runs its calculations.
func (b *Broker) Reopen(workflowID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[workflowID]; ok && t.closed {
		delete(b.topics, workflowID)
	}
}
