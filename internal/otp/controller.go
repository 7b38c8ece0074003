// Package otp drives the two-step one-time-code sign-in.
//
// STATE MACHINE:
//
//	EmailEntry --RequestCode ok--> CodeEntry --VerifyCode ok--> Authenticated
//	     ^                            |
//	     +------------Back------------+
//
// Across both entry states runs a cooldown: a countdown in seconds that
// blocks new code requests. A successful request starts it at
// CooldownWindow; a rate-limit answer from the gateway raises it to the
// wait the gateway asked for.
//
// Every operation returns a Result. Gateway failures are reported, never
// returned as Go errors or panics, so the HTTP layer can hand the Result
// straight to the browser.
package otp

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/model"
)

type State string

const (
	StateEmailEntry    State = "email_entry"
	StateCodeEntry     State = "code_entry"
	StateAuthenticated State = "authenticated"
)

const (
	// CooldownWindow is the cooldown after a successful code request.
	CooldownWindow = 60
	// MaxCooldown bounds any wait a gateway can impose on us.
	MaxCooldown = 3600
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Result is the outcome of one controller operation.
type Result struct {
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	IsRateLimit     bool   `json:"isRateLimit,omitempty"`
	WaitTimeSeconds int    `json:"waitTimeSeconds,omitempty"`

	// Identity is set by a successful VerifyCode.
	Identity *model.Identity `json:"-"`
}

func failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Controller holds one person's sign-in attempt.
//
// All methods are safe for concurrent use. A gateway call in progress
// marks the controller busy, and a second RequestCode, ResendCode or
// VerifyCode arriving meanwhile is rejected rather than queued.
type Controller struct {
	gw  gateway.Authenticator
	now func() time.Time

	mu       sync.Mutex
	state    State
	email    string
	issuedAt time.Time
	cooldown int
	lastTick time.Time
	busy     bool
	identity *model.Identity
}

type Option func(*Controller)

// WithClock overrides time.Now for Catchup.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New returns a controller in EmailEntry with no cooldown.
func New(gw gateway.Authenticator, opts ...Option) *Controller {
	c := &Controller{gw: gw, now: time.Now, state: StateEmailEntry}
	for _, opt := range opts {
		opt(c)
	}
	c.lastTick = c.now()
	return c
}

// RequestCode asks the gateway to send a code to email.
// It never provisions a new account.
func (c *Controller) RequestCode(ctx context.Context, email string) Result {
	email = strings.TrimSpace(email)
	if email == "" {
		return failure("Email is required")
	}
	return c.send(ctx, email)
}

// ResendCode repeats RequestCode for the email already entered. While the
// cooldown runs it does nothing and reports the remaining wait.
func (c *Controller) ResendCode(ctx context.Context) Result {
	c.mu.Lock()
	state, email := c.state, c.email
	c.mu.Unlock()

	if state != StateCodeEntry || email == "" {
		return failure("Request a code first")
	}
	return c.send(ctx, email)
}

func (c *Controller) send(ctx context.Context, email string) Result {
	c.mu.Lock()
	switch {
	case c.state == StateAuthenticated:
		c.mu.Unlock()
		return failure("Already signed in")
	case c.cooldown > 0:
		wait := c.cooldown
		c.mu.Unlock()
		return Result{
			Error:           fmt.Sprintf("Please wait %d seconds before requesting another code", wait),
			IsRateLimit:     true,
			WaitTimeSeconds: wait,
		}
	case c.busy:
		c.mu.Unlock()
		return failure("A request is already in progress")
	}
	c.busy = true
	c.mu.Unlock()

	err := c.gw.SendCode(ctx, email, gateway.SendOptions{AllowNewUser: false})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		if limited, wait := DetectRateLimit(err); limited {
			c.raiseCooldown(wait)
			return Result{
				Error:           rateLimitMessage(wait),
				IsRateLimit:     true,
				WaitTimeSeconds: wait,
			}
		}
		return failure("%s", errorMessage(err))
	}

	c.state = StateCodeEntry
	c.email = email
	c.issuedAt = c.now()
	c.raiseCooldown(CooldownWindow)
	return Result{Success: true}
}

// VerifyCode checks code with the gateway. Anything but exactly six digits
// is rejected here without a gateway call.
func (c *Controller) VerifyCode(ctx context.Context, code string) Result {
	code = strings.TrimSpace(code)

	c.mu.Lock()
	switch {
	case c.state == StateAuthenticated:
		c.mu.Unlock()
		return failure("Already signed in")
	case c.state != StateCodeEntry:
		c.mu.Unlock()
		return failure("Request a code first")
	case !codePattern.MatchString(code):
		c.mu.Unlock()
		return failure("Please enter a valid 6-digit code")
	case c.busy:
		c.mu.Unlock()
		return failure("A request is already in progress")
	}
	c.busy = true
	email := c.email
	c.mu.Unlock()

	identity, err := c.gw.VerifyCode(ctx, email, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false

	if err != nil {
		if limited, wait := DetectRateLimit(err); limited {
			c.raiseCooldown(wait)
			return Result{Error: errorMessage(err), IsRateLimit: true, WaitTimeSeconds: wait}
		}
		return failure("%s", errorMessage(err))
	}

	c.state = StateAuthenticated
	c.identity = identity
	c.issuedAt = time.Time{}
	c.cooldown = 0
	return Result{Success: true, Identity: identity}
}

// Back returns from CodeEntry to EmailEntry and drops the challenge.
// The cooldown keeps running.
func (c *Controller) Back() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateCodeEntry {
		return failure("Nothing to go back from")
	}
	c.state = StateEmailEntry
	c.email = ""
	c.issuedAt = time.Time{}
	return Result{Success: true}
}

// Tick counts the cooldown down by one second, stopping at zero.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickLocked(1)
	c.lastTick = c.lastTick.Add(time.Second)
}

// Catchup applies one Tick per whole second elapsed since the last tick.
// The HTTP layer calls it on every request instead of running a timer.
func (c *Controller) Catchup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := int(now.Sub(c.lastTick) / time.Second)
	if elapsed <= 0 {
		return
	}
	c.tickLocked(elapsed)
	c.lastTick = c.lastTick.Add(time.Duration(elapsed) * time.Second)
}

func (c *Controller) tickLocked(n int) {
	c.cooldown = max(c.cooldown-n, 0)
}

// raiseCooldown never shortens a running cooldown. Callers hold mu.
func (c *Controller) raiseCooldown(seconds int) {
	seconds = min(max(seconds, 0), MaxCooldown)
	if c.cooldown == 0 {
		c.lastTick = c.now()
	}
	c.cooldown = max(c.cooldown, seconds)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Cooldown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldown
}

func (c *Controller) Email() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.email
}

// Identity is set once the controller reaches Authenticated.
func (c *Controller) Identity() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Progress is how far through the cooldown window we are, 0 to 1.
// With no cooldown it is 1.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := float64(CooldownWindow-c.cooldown) / CooldownWindow
	return min(max(p, 0), 1)
}
