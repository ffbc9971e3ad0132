package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventMessage  EventType = "message"
	EventExpiry   EventType = "expiry"
)

// Event is what a viewer's session emits to the transport.
type Event struct {
	Type     EventType `json:"type"`
	Messages []Message `json:"messages,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	State    *State    `json:"state,omitempty"`
}

// Session ties one viewer's feed subscription and expiry ticker together.
// The two inputs stay independent; both are released when Run returns.
type Session struct {
	Feed       *Feed
	Gate       *Gate
	Subscriber Subscriber
	Tick       time.Duration
	Clock      func() time.Time
}

// Run subscribes to new messages, loads the conversation and re-evaluates the
// expiry gate on every tick until ctx is done. emit may be called from the
// subscription goroutine and from the ticker concurrently.
//
// The subscription opens before the load, so a message stored while the load
// runs is either part of the snapshot or emitted after it, never lost.
func (s *Session) Run(ctx context.Context, emit func(Event)) error {
	var (
		mu     sync.Mutex
		loaded bool
	)
	sub, err := s.Subscriber.Subscribe(ctx, s.Feed.ConversationID(), func(m Message) {
		mu.Lock()
		defer mu.Unlock()
		// Before the snapshot, arrivals only join the feed; Load keeps them.
		if s.Feed.OnMessageArrived(m) && loaded {
			msg := m
			emit(Event{Type: EventMessage, Message: &msg})
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to conversation: %w", err)
	}
	defer sub.Close()

	mu.Lock()
	msgs, err := s.Feed.Load(ctx)
	if err != nil {
		mu.Unlock()
		return err
	}
	emit(Event{Type: EventSnapshot, Messages: msgs})
	loaded = true
	mu.Unlock()

	s.Gate.Watch(ctx, s.Tick, s.Clock, func(st State) {
		state := st
		emit(Event{Type: EventExpiry, State: &state})
	})
	return nil
}
