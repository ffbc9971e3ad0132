package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	messages []Message
	err      error
	readBy   []Role
}

func (s *fakeStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkRead(_ context.Context, _ string, reader Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.readBy = append(s.readBy, reader)
	return nil
}

func msg(id string, sender Role, sentAt time.Time) Message {
	return Message{
		ID:             id,
		ConversationID: "conv-1",
		SenderRole:     sender,
		Body:           "body " + id,
		Kind:           KindText,
		SentAt:         sentAt,
		ReadStatus:     StatusSent,
	}
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestFeed_LoadOrdersBySentAt(t *testing.T) {
	store := &fakeStore{messages: []Message{
		msg("b", RoleClinician, base.Add(2*time.Minute)),
		msg("a", RolePatient, base.Add(time.Minute)),
		{ID: "other", ConversationID: "conv-2", SentAt: base},
	}}
	f := NewFeed("conv-1", store)

	got, err := f.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestFeed_LoadError(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{err: errors.New("db down")})

	_, err := f.Load(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestFeed_ArrivalAppendsInOrder(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{messages: []Message{msg("m1", RolePatient, base)}})
	_, err := f.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, f.OnMessageArrived(msg("m2", RoleClinician, base.Add(time.Minute))))

	assert.Equal(t, []string{"m1", "m2"}, ids(f.Messages()))
}

func TestFeed_OutOfOrderArrivalIsInsertedByTime(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{})
	f.OnMessageArrived(msg("m1", RolePatient, base))
	f.OnMessageArrived(msg("m3", RolePatient, base.Add(2*time.Minute)))

	f.OnMessageArrived(msg("m2", RoleClinician, base.Add(time.Minute)))

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(f.Messages()))
}

func TestFeed_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{})
	f.OnMessageArrived(msg("first", RolePatient, base))
	f.OnMessageArrived(msg("second", RoleClinician, base))

	assert.Equal(t, []string{"first", "second"}, ids(f.Messages()))
}

func TestFeed_DuplicateIsDropped(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{messages: []Message{msg("m1", RolePatient, base)}})
	_, err := f.Load(context.Background())
	require.NoError(t, err)

	assert.False(t, f.OnMessageArrived(msg("m1", RolePatient, base)))
	assert.Len(t, f.Messages(), 1)
}

func TestFeed_IgnoresOtherConversations(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{})
	other := msg("x", RolePatient, base)
	other.ConversationID = "conv-2"

	assert.False(t, f.OnMessageArrived(other))
	assert.Empty(t, f.Messages())
}

func TestFeed_ReloadKeepsRealtimeArrivals(t *testing.T) {
	store := &fakeStore{messages: []Message{msg("m1", RolePatient, base)}}
	f := NewFeed("conv-1", store)
	f.OnMessageArrived(msg("live", RoleClinician, base.Add(time.Minute)))

	got, err := f.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "live"}, ids(got))
}

func TestFeed_MarkReadOnlyTouchesOtherSide(t *testing.T) {
	store := &fakeStore{messages: []Message{
		msg("p1", RolePatient, base),
		msg("c1", RoleClinician, base.Add(time.Minute)),
		msg("c2", RoleClinician, base.Add(2*time.Minute)),
	}}
	f := NewFeed("conv-1", store)
	_, err := f.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.MarkRead(context.Background(), RolePatient))

	got := f.Messages()
	assert.Equal(t, StatusSent, got[0].ReadStatus)
	assert.Equal(t, StatusRead, got[1].ReadStatus)
	assert.Equal(t, StatusRead, got[2].ReadStatus)
	assert.Equal(t, []Role{RolePatient}, store.readBy)
}

func TestFeed_MarkReadStoreFailureLeavesStateUnchanged(t *testing.T) {
	store := &fakeStore{}
	f := NewFeed("conv-1", store)
	f.OnMessageArrived(msg("c1", RoleClinician, base))
	store.err = errors.New("write failed")

	err := f.MarkRead(context.Background(), RolePatient)

	assert.Error(t, err)
	assert.Equal(t, StatusSent, f.Messages()[0].ReadStatus)
}

func TestFeed_MessagesReturnsCopy(t *testing.T) {
	f := NewFeed("conv-1", &fakeStore{})
	f.OnMessageArrived(msg("m1", RolePatient, base))

	got := f.Messages()
	got[0].Body = "changed"

	assert.Equal(t, "body m1", f.Messages()[0].Body)
}

func TestRole_Other(t *testing.T) {
	assert.Equal(t, RoleClinician, RolePatient.Other())
	assert.Equal(t, RolePatient, RoleClinician.Other())
}
