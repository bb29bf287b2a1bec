package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	EventBarterChanged    = "barter-change"
	EventCommunityChanged = "community-change"
	EventNotification     = "notification"
	EventHeartbeat        = "heartbeat"

	defaultBufferSize = 16
)

// Message is a per-user event delivered to connected clients.
type Message struct {
	UserID    string    `json:"user_id"`
	EventType string    `json:"event_type"`
	SubjectID string    `json:"subject_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher accepts messages for delivery.
type Publisher interface {
	Publish(message Message)
}

// Dispatcher fans messages out to the in-process subscribers of each user.
// Slow subscribers drop messages rather than block publishers; clients recover
// by re-reading state.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a stream for userID that lives until ctx is done or the
// returned cleanup is called.
func (d *Dispatcher) Subscribe(ctx context.Context, userID string) (<-chan Message, func()) {
	if userID == "" {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(userID, sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregister(userID, sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (d *Dispatcher) Publish(message Message) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subs := d.subscribers[message.UserID]
	if len(subs) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subs))
	for _, sub := range subs {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live streams for userID.
func (d *Dispatcher) SubscriberCount(userID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(userID string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*subscriber)
	}
	d.subscribers[userID][sub.id] = sub
}

func (d *Dispatcher) unregister(userID string, subscriberID int64) {
	d.mu.Lock()
	subs := d.subscribers[userID]
	if subs != nil {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}
