package events

import (
	"sync"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/pkg/logger"
)

// Event types emitted by the core engines.
const (
	TypeAlertCreated       = "alert.created"
	TypeAlertAcknowledged  = "alert.acknowledged"
	TypeAlertResolved      = "alert.resolved"
	TypeAlertEscalated     = "alert.escalated"
	TypeTargetStateChanged = "target.state_changed"
)

// Event is the structured record handed to external sinks. Fields not
// relevant to a given type stay zero.
type Event struct {
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	AlertID         string    `json:"alert_id,omitempty"`
	RuleID          string    `json:"rule_id,omitempty"`
	TargetID        string    `json:"target_id,omitempty"`
	Severity        string    `json:"severity,omitempty"`
	State           string    `json:"state,omitempty"`
	PreviousState   string    `json:"previous_state,omitempty"`
	EscalationLevel int       `json:"escalation_level,omitempty"`
	Channels        []string  `json:"channels,omitempty"`
	Actor           string    `json:"actor,omitempty"`
	Message         string    `json:"message,omitempty"`
}

// Sink consumes events. Implementations are external (notifiers, queues);
// a slow sink only delays its own queue, never the publishing engine.
type Sink interface {
	Deliver(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

// Deliver implements Sink.
func (f SinkFunc) Deliver(e Event) { f(e) }

type subscriber struct {
	sink   Sink
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	done   chan struct{}
}

// Bus fans events out to registered sinks with at-least-once delivery.
// Publish never blocks: each sink drains its own queue on a dedicated
// goroutine.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscriber
	closed bool
	logger *logger.Logger
	wg     sync.WaitGroup
}

// NewBus creates an event bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{logger: log}
}

// Subscribe registers a sink. Events published after Subscribe returns are
// guaranteed to reach the sink at least once (more than once if the sink's
// Deliver fails internally and the caller re-registers).
func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	sub := &subscriber{
		sink:   sink,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	go b.drain(sub)
}

// Publish enqueues the event for every sink.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		sub.queue = append(sub.queue, e)
		sub.mu.Unlock()
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

// Close stops delivery after flushing queued events.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
}

func (b *Bus) drain(sub *subscriber) {
	defer b.wg.Done()
	for {
		sub.mu.Lock()
		pending := sub.queue
		sub.queue = nil
		sub.mu.Unlock()

		for _, e := range pending {
			b.deliver(sub, e)
		}

		select {
		case <-sub.notify:
		case <-sub.done:
			// Flush anything that raced in after the last drain.
			sub.mu.Lock()
			pending = sub.queue
			sub.queue = nil
			sub.mu.Unlock()
			for _, e := range pending {
				b.deliver(sub, e)
			}
			return
		}
	}
}

func (b *Bus) deliver(sub *subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.WithFields(map[string]interface{}{
				"event_type": e.Type,
				"panic":      r,
			}).Error("Event sink panicked")
		}
	}()
	sub.sink.Deliver(e)
}
