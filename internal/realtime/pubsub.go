package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"medilink-server/internal/chat"
)

// Channel returns the pub/sub channel carrying inserts of one conversation.
func Channel(conversationID string) string {
	return "chat:" + conversationID
}

// Broker fans chat message inserts out to every open session through Redis
// pub/sub, so all API instances see messages stored by any of them.
type Broker struct {
	client *redis.Client
	log    *zap.Logger
}

func NewBroker(client *redis.Client, log *zap.Logger) *Broker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{client: client, log: log}
}

// Publish announces a stored message to the conversation's subscribers.
func (b *Broker) Publish(ctx context.Context, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(msg.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Subscribe registers onMessage for inserts of one conversation. It returns
// once Redis has confirmed the subscription.
func (b *Broker) Subscribe(ctx context.Context, conversationID string, onMessage func(chat.Message)) (chat.Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(conversationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(conversationID), err)
	}

	sub := &subscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for m := range ps.Channel() {
			var msg chat.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				b.log.Warn("dropping malformed chat payload",
					zap.String("channel", m.Channel),
					zap.Error(err))
				continue
			}
			onMessage(msg)
		}
	}()
	return sub, nil
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

// Close unsubscribes and waits for the delivery goroutine to exit.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
