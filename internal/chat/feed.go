package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Feed keeps the ordered message list of one conversation for one viewer.
//
// Messages are ordered by SentAt; messages with equal SentAt keep the order in
// which they reached the feed. Duplicates (same ID) are dropped, so a replay
// after a reconnect does not render twice.
type Feed struct {
	conversationID string
	store          Store

	mu       sync.Mutex
	messages []Message
	seen     map[string]struct{}
}

func NewFeed(conversationID string, store Store) *Feed {
	return &Feed{
		conversationID: conversationID,
		store:          store,
		seen:           make(map[string]struct{}),
	}
}

// ConversationID returns the conversation this feed follows.
func (f *Feed) ConversationID() string {
	return f.conversationID
}

// Load fetches the conversation from the store and makes it the feed state.
// Messages that arrived through the realtime feed but are missing from the
// store result are kept.
func (f *Feed) Load(ctx context.Context) ([]Message, error) {
	loaded, err := f.store.ListMessages(ctx, f.conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].SentAt.Before(loaded[j].SentAt) })

	f.mu.Lock()
	defer f.mu.Unlock()

	previous := f.messages
	f.messages = make([]Message, 0, len(loaded)+len(previous))
	f.seen = make(map[string]struct{}, len(loaded)+len(previous))
	for _, m := range loaded {
		f.insertLocked(m)
	}
	for _, m := range previous {
		f.insertLocked(m)
	}
	return f.snapshotLocked(), nil
}

// OnMessageArrived merges a message pushed by the realtime feed. It reports
// whether the message was new to this feed.
func (f *Feed) OnMessageArrived(msg Message) bool {
	if msg.ConversationID != f.conversationID {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertLocked(msg)
}

// MarkRead marks every sent message authored by the other side as read.
func (f *Feed) MarkRead(ctx context.Context, reader Role) error {
	if err := f.store.MarkRead(ctx, f.conversationID, reader); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.messages {
		if f.messages[i].SenderRole != reader && f.messages[i].ReadStatus == StatusSent {
			f.messages[i].ReadStatus = StatusRead
		}
	}
	return nil
}

// Messages returns a copy of the current ordered list.
func (f *Feed) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) insertLocked(msg Message) bool {
	if _, dup := f.seen[msg.ID]; dup {
		return false
	}
	f.seen[msg.ID] = struct{}{}

	// First position whose SentAt is strictly later; in-order arrivals append.
	idx := sort.Search(len(f.messages), func(i int) bool {
		return f.messages[i].SentAt.After(msg.SentAt)
	})
	f.messages = append(f.messages, Message{})
	copy(f.messages[idx+1:], f.messages[idx:])
	f.messages[idx] = msg
	return true
}

func (f *Feed) snapshotLocked() []Message {
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}
