package otp

import (
	"time"

	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/model"
)

// Snapshot is the controller's state between HTTP requests.
type Snapshot struct {
	State    State           `json:"state"`
	Email    string          `json:"email,omitempty"`
	IssuedAt time.Time       `json:"issuedAt,omitzero"`
	Cooldown int             `json:"cooldown"`
	LastTick time.Time       `json:"lastTick"`
	Identity *model.Identity `json:"identity,omitempty"`
}

// Snapshot captures the current state. The busy flag is not captured: a
// restored controller never has a call in flight.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:    c.state,
		Email:    c.email,
		IssuedAt: c.issuedAt,
		Cooldown: c.cooldown,
		LastTick: c.lastTick,
		Identity: c.identity,
	}
}

// Restore rebuilds a controller from a snapshot. Out-of-range values are
// clamped and an unknown state falls back to EmailEntry.
func Restore(gw gateway.Authenticator, snap Snapshot, opts ...Option) *Controller {
	c := New(gw, opts...)

	switch snap.State {
	case StateEmailEntry, StateCodeEntry, StateAuthenticated:
		c.state = snap.State
	}
	if c.state == StateCodeEntry && snap.Email == "" {
		c.state = StateEmailEntry
	}

	c.email = snap.Email
	c.issuedAt = snap.IssuedAt
	c.cooldown = min(max(snap.Cooldown, 0), MaxCooldown)
	if !snap.LastTick.IsZero() {
		c.lastTick = snap.LastTick
	}
	c.identity = snap.Identity
	return c
}
