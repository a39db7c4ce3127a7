// Package inmemory provides a room-scoped in-process event bus. It is the
// broadcast-style transport binding: every subscriber of a room receives every
// published event, including the publisher's own, so receivers must filter by
// origin id.
package inmemory

import (
	"context"
	"sync"

	"github.com/watchsync/server/internal/domain"
)

type subscriber struct {
	id      int
	handler func(domain.SyncEvent)
}

type Transport struct {
	rooms  map[string][]subscriber
	nextID int
	mu     sync.RWMutex
}

func NewTransport() *Transport {
	return &Transport{rooms: make(map[string][]subscriber)}
}

func (t *Transport) Publish(_ context.Context, roomID string, ev domain.SyncEvent) error {
	t.mu.RLock()
	subs := make([]subscriber, len(t.rooms[roomID]))
	copy(subs, t.rooms[roomID])
	t.mu.RUnlock()

	// handlers run outside the lock so they may publish in turn
	for _, sub := range subs {
		sub.handler(ev)
	}

	return nil
}

func (t *Transport) Subscribe(_ context.Context, roomID string, handler func(domain.SyncEvent)) (func(), error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.rooms[roomID] = append(t.rooms[roomID], subscriber{id: id, handler: handler})
	t.mu.Unlock()

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		subs := t.rooms[roomID]
		for i, sub := range subs {
			if sub.id == id {
				t.rooms[roomID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(t.rooms[roomID]) == 0 {
			delete(t.rooms, roomID)
		}
	}

	return unsubscribe, nil
}
