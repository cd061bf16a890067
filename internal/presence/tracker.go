// Package presence tracks which users currently hold at least one live client connection.
package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/bloops-games/carousing/internal/broadcast"
)

func NewTracker(publisher broadcast.Publisher) *Tracker {
	return &Tracker{conns: map[string]int{}, publisher: publisher}
}

type Tracker struct {
	mtx       sync.RWMutex
	conns     map[string]int
	publisher broadcast.Publisher
}

// Join counts a new connection for userID and reports whether the user just came online.
func (t *Tracker) Join(userID string) bool {
	t.mtx.Lock()
	t.conns[userID]++
	first := t.conns[userID] == 1
	t.mtx.Unlock()

	if first {
		t.publish(userID)
	}

	return first
}

// Leave drops one connection and reports whether it was the user's last.
func (t *Tracker) Leave(userID string) bool {
	t.mtx.Lock()
	n, ok := t.conns[userID]
	if !ok {
		t.mtx.Unlock()
		return false
	}

	last := n <= 1
	if last {
		delete(t.conns, userID)
	} else {
		t.conns[userID] = n - 1
	}
	t.mtx.Unlock()

	if last {
		t.publish(userID)
	}

	return last
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	_, ok := t.conns[userID]
	return ok
}

func (t *Tracker) Online() []string {
	t.mtx.RLock()
	ids := make([]string, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	t.mtx.RUnlock()

	sort.Strings(ids)
	return ids
}

// Count is the number of live connections userID holds on this node.
func (t *Tracker) Count(userID string) int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.conns[userID]
}

func (t *Tracker) snapshot() map[string]int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	out := make(map[string]int, len(t.conns))
	for id, n := range t.conns {
		out[id] = n
	}
	return out
}

// OnlineUsers is Online for a single-node deployment.
func (t *Tracker) OnlineUsers(context.Context) ([]string, error) {
	return t.Online(), nil
}

func (t *Tracker) publish(userID string) {
	if t.publisher != nil {
		t.publisher.Publish(broadcast.Event{Topic: broadcast.TopicPresence, Key: userID})
	}
}
