package storage

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"groupchat/model"
)

func newID() string {
	return ulid.Make().String()
}

// broker fans message changes out to in-process subscribers. Callbacks run
// on the writer's goroutine and must not block.
type broker struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(model.Message)
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[int]func(model.Message))}
}

func (b *broker) subscribe(ctx context.Context, conversationID string, fn func(model.Message)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[int]func(model.Message))
	}
	b.subs[conversationID][id] = fn
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[conversationID], id)
			if len(b.subs[conversationID]) == 0 {
				delete(b.subs, conversationID)
			}
		})
	}

	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}
}

func (b *broker) publish(msg model.Message) {
	b.mu.RLock()
	fns := make([]func(model.Message), 0, len(b.subs[msg.ConversationID]))
	for _, fn := range b.subs[msg.ConversationID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (b *broker) subscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}
