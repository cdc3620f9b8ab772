package pubsub

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var plog zerolog.Logger

func init() {
	plog = log.With().Str("component", "pubsub").Logger()
}

// DefaultBuffer is how many messages a slow subscriber may fall behind
// before it starts losing them.
const DefaultBuffer = 64

type SubscriptionID int64

// Pubsub fans messages out to subscribers without ever blocking the
// publisher. The dispatcher publishes from its own goroutine, so a stalled
// websocket client must never hold it up.
type Pubsub[T any] struct {
	mu          sync.RWMutex
	nextID      SubscriptionID
	buffer      int
	subscribers map[SubscriptionID]chan T
	dropped     atomic.Uint64
}

func New[T any]() *Pubsub[T] {
	return NewBuffered[T](DefaultBuffer)
}

func NewBuffered[T any](buffer int) *Pubsub[T] {
	if buffer < 0 {
		buffer = 0
	}
	return &Pubsub[T]{
		buffer:      buffer,
		subscribers: make(map[SubscriptionID]chan T),
	}
}

func (ps *Pubsub[T]) Subscribe() (SubscriptionID, <-chan T) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ch := make(chan T, ps.buffer)
	id := ps.nextID
	ps.subscribers[id] = ch
	ps.nextID++

	plog.Debug().Int64("subscription_id", int64(id)).Msg("Subscribed")
	return id, ch
}

// Unsubscribe closes the subscriber's channel. Unknown ids are ignored.
func (ps *Pubsub[T]) Unsubscribe(id SubscriptionID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ch, ok := ps.subscribers[id]
	if !ok {
		return
	}
	delete(ps.subscribers, id)
	close(ch)

	plog.Debug().Int64("subscription_id", int64(id)).Msg("Unsubscribed")
}

func (ps *Pubsub[T]) Publish(msg T) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for id, ch := range ps.subscribers {
		select {
		case ch <- msg:
		default:
			if n := ps.dropped.Add(1); n&(n-1) == 0 {
				// Log on powers of two so a dead client can't flood the log.
				plog.Warn().
					Int64("subscription_id", int64(id)).
					Uint64("dropped", n).
					Msg("Message dropped, channel full")
			}
		}
	}
}

func (ps *Pubsub[T]) Subscribers() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers)
}

// Dropped counts messages lost to full subscriber channels.
func (ps *Pubsub[T]) Dropped() uint64 {
	return ps.dropped.Load()
}
