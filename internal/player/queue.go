package player

import (
	"sync"
	"time"
)

// JoinEvent is a normalized voice-channel join.
type JoinEvent struct {
	UserID    string
	Username  string
	GuildID   string
	ChannelID string
	At        time.Time
}

// queue holds pending join events for one guild in arrival order. If a user
// joins again while their earlier event is still pending, the newer event
// replaces it in place so a stale binding is never played. When the cap is
// exceeded the oldest pending event is discarded.
type queue struct {
	mu    sync.Mutex
	items []JoinEvent
	cap   int
}

func newQueue(cap int) *queue {
	return &queue{cap: cap}
}

// push adds an event and returns the event discarded to honor the cap, if
// any.
func (q *queue) push(ev JoinEvent) *JoinEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.items {
		if q.items[i].UserID == ev.UserID {
			q.items[i] = ev
			return nil
		}
	}

	q.items = append(q.items, ev)
	if q.cap > 0 && len(q.items) > q.cap {
		dropped := q.items[0]
		q.items = append(q.items[:0], q.items[1:]...)
		return &dropped
	}
	return nil
}

func (q *queue) pop() (JoinEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return JoinEvent{}, false
	}
	ev := q.items[0]
	q.items = append(q.items[:0], q.items[1:]...)
	return ev, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
