package events

import (
	"sync"
	"time"

	"github.com/msageha/hatloop/internal/topic"
)

// Record is an event as observed by the loop: the event plus where it went.
// It is both the bus payload and the history line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Iteration int       `json:"iteration"`
	ActiveHat string    `json:"active_hat"`
	Topic     string    `json:"topic"`
	RoutedTo  string    `json:"routed_to"`
	Payload   string    `json:"payload"`
	SourceHat string    `json:"source_hat,omitempty"`
	Target    string    `json:"target,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
}

// Subscriber is a function that receives records.
type Subscriber func(Record)

type subscription struct {
	pattern string
	ch      chan Record
}

// Bus fans records out to observers subscribed by topic pattern.
// Records are delivered asynchronously via buffered channels, in publish
// order per subscriber. If a subscriber's channel is full, the record is
// dropped for that subscriber.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscription
	bufferSize int
	wg         sync.WaitGroup
	closed     bool
}

// NewBus creates a new bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers fn for every record whose topic matches pattern.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(pattern string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{pattern: pattern, ch: make(chan Record, b.bufferSize)}
	if b.closed {
		close(sub.ch)
		return func() {}
	}
	b.subs = append(b.subs, sub)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for rec := range sub.ch {
			func() {
				// A panicking observer must not take the loop down.
				defer func() { _ = recover() }()
				fn(rec)
			}()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					close(sub.ch)
					break
				}
			}
		})
	}
}

// Publish delivers rec to every matching subscriber without blocking.
func (b *Bus) Publish(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !topic.Matches(s.pattern, rec.Topic) {
			continue
		}
		select {
		case s.ch <- rec:
		default:
		}
	}
}

// Close stops all subscribers and waits for queued records to be delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
	b.mu.Unlock()
	b.wg.Wait()
}
