package chat

import (
	"context"
	"sync"
	"time"
)

// DefaultTick is how often an open conversation re-evaluates its expiry.
const DefaultTick = time.Minute

// Remaining is the time left in a conversation, truncated to whole minutes.
type Remaining struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// State is the writable/expired view of a conversation at one instant.
type State struct {
	Expired   bool      `json:"expired"`
	Remaining Remaining `json:"remaining"`
}

// ExpiryState reports whether a conversation is still writable at now.
// The expiry instant itself is still open. A missing expiry is treated as expired.
func ExpiryState(now time.Time, expiresAt *time.Time) State {
	if expiresAt == nil || expiresAt.IsZero() || now.After(*expiresAt) {
		return State{Expired: true}
	}
	left := expiresAt.Sub(now)
	return State{
		Remaining: Remaining{
			Hours:   int(left / time.Hour),
			Minutes: int((left % time.Hour) / time.Minute),
		},
	}
}

// Gate latches the expiry of one conversation: once it has observed the
// conversation expired it keeps reporting expired.
type Gate struct {
	mu        sync.Mutex
	expiresAt *time.Time
	expired   bool
}

func NewGate(expiresAt *time.Time) *Gate {
	var exp *time.Time
	if expiresAt != nil {
		t := *expiresAt
		exp = &t
	}
	return &Gate{expiresAt: exp}
}

// Check evaluates the gate at now.
func (g *Gate) Check(now time.Time) State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.expired {
		return State{Expired: true}
	}
	s := ExpiryState(now, g.expiresAt)
	if s.Expired {
		g.expired = true
	}
	return s
}

// Open reports whether messages and attachments may be sent at now.
func (g *Gate) Open(now time.Time) bool {
	return !g.Check(now).Expired
}

// Watch evaluates the gate immediately and then on every tick, passing each
// state to fn, until ctx is done. The ticker is released before Watch returns.
func (g *Gate) Watch(ctx context.Context, tick time.Duration, clock func() time.Time, fn func(State)) {
	if tick <= 0 {
		tick = DefaultTick
	}
	if clock == nil {
		clock = time.Now
	}

	fn(g.Check(clock()))

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(g.Check(clock()))
		}
	}
}
