package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/metrics"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/otp"
	"github.com/sakif/snuffspec/internal/repository"
)

// lockStripes is the number of mutexes flow ids are hashed onto.
const lockStripes = 64

// FlowView is the sign-in page state for one browser.
type FlowView struct {
	State    otp.State `json:"state"`
	Email    string    `json:"email,omitempty"`
	Cooldown int       `json:"cooldown"`
	Progress float64   `json:"progress"`
}

// SignInOutcome is the result of one sign-in step.
type SignInOutcome struct {
	// FlowID must be written back to the flow cookie. It changes when the
	// request arrived without a live flow.
	FlowID string

	Result otp.Result
	View   FlowView

	// Set once the code is verified.
	Identity    *model.Identity
	IsAnonymous bool
	ReturnTo    string
}

// SignInService runs the one-time-code controller across HTTP requests.
//
// Each request restores the controller from the flow store, catches up the
// cooldown clock, applies one step and saves the result. Requests for the
// same flow are serialized by a striped lock, so two tabs submitting at
// once see each other's effects instead of racing.
type SignInService struct {
	gw       gateway.Authenticator
	flows    otp.FlowStore
	profiles repository.ProfileRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	locks [lockStripes]sync.Mutex
}

func NewSignInService(gw gateway.Authenticator, flows otp.FlowStore, profiles repository.ProfileRepository, m *metrics.Metrics, logger *slog.Logger) *SignInService {
	return &SignInService{
		gw:       gw,
		flows:    flows,
		profiles: profiles,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *SignInService) lock(flowID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(flowID))
	return &s.locks[h.Sum32()%lockStripes]
}

// Start loads the flow or begins a new one. returnTo is remembered for
// after verification.
func (s *SignInService) Start(ctx context.Context, flowID, returnTo string) (*SignInOutcome, error) {
	return s.step(ctx, flowID, "start", func(_ *otp.Controller, flow *otp.Flow) otp.Result {
		if returnTo != "" {
			flow.ReturnTo = SafeReturnTo(returnTo)
		}
		return otp.Result{Success: true}
	})
}

func (s *SignInService) RequestCode(ctx context.Context, flowID, email string) (*SignInOutcome, error) {
	return s.step(ctx, flowID, "request_code", func(c *otp.Controller, _ *otp.Flow) otp.Result {
		return c.RequestCode(ctx, email)
	})
}

func (s *SignInService) ResendCode(ctx context.Context, flowID string) (*SignInOutcome, error) {
	return s.step(ctx, flowID, "resend_code", func(c *otp.Controller, _ *otp.Flow) otp.Result {
		return c.ResendCode(ctx)
	})
}

func (s *SignInService) VerifyCode(ctx context.Context, flowID, code string) (*SignInOutcome, error) {
	out, err := s.step(ctx, flowID, "verify_code", func(c *otp.Controller, _ *otp.Flow) otp.Result {
		return c.VerifyCode(ctx, code)
	})
	if err != nil || !out.Result.Success {
		return out, err
	}

	out.Identity = out.Result.Identity
	out.IsAnonymous = s.isAnonymous(ctx, out.Identity)
	s.logger.Info("user signed in",
		slog.String("user_id", out.Identity.ID),
		slog.Bool("anonymous", out.IsAnonymous),
	)
	return out, nil
}

func (s *SignInService) Back(ctx context.Context, flowID string) (*SignInOutcome, error) {
	return s.step(ctx, flowID, "back", func(c *otp.Controller, _ *otp.Flow) otp.Result {
		return c.Back()
	})
}

// Forget drops a flow, e.g. on sign-out.
func (s *SignInService) Forget(ctx context.Context, flowID string) error {
	if flowID == "" {
		return nil
	}
	mu := s.lock(flowID)
	mu.Lock()
	defer mu.Unlock()
	return s.flows.Delete(ctx, flowID)
}

// isAnonymous reports a signed-in identity with no profile. A lookup
// failure is logged and reported as not anonymous; the gate re-resolves
// the role on the next request anyway.
func (s *SignInService) isAnonymous(ctx context.Context, identity *model.Identity) bool {
	_, err := s.profiles.GetProfile(ctx, identity.ID)
	if err == nil {
		return false
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Error("loading profile after sign-in",
			slog.String("user_id", identity.ID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (s *SignInService) step(ctx context.Context, flowID, op string, apply func(*otp.Controller, *otp.Flow) otp.Result) (*SignInOutcome, error) {
	if flowID == "" {
		flowID = xid.New().String()
	}
	mu := s.lock(flowID)
	mu.Lock()
	defer mu.Unlock()

	flow, err := s.flows.Load(ctx, flowID)
	if errors.Is(err, apperror.ErrNotFound) {
		// Unknown or expired: start over under a fresh id so a guessed id
		// never names a flow.
		flowID = xid.New().String()
		flow = &otp.Flow{Snapshot: otp.New(s.gw, otp.WithClock(s.now)).Snapshot()}
	} else if err != nil {
		return nil, fmt.Errorf("loading sign-in flow: %w", err)
	}

	c := otp.Restore(s.gw, flow.Snapshot, otp.WithClock(s.now))
	c.Catchup(s.now())

	res := apply(c, flow)
	s.observe(op, res)

	out := &SignInOutcome{
		FlowID:   flowID,
		Result:   res,
		View:     viewOf(c),
		ReturnTo: flow.ReturnTo,
	}
	if out.ReturnTo == "" {
		out.ReturnTo = "/"
	}

	if c.State() == otp.StateAuthenticated {
		if err := s.flows.Delete(ctx, flowID); err != nil {
			s.logger.Warn("dropping finished sign-in flow", slog.String("error", err.Error()))
		}
		return out, nil
	}

	flow.Snapshot = c.Snapshot()
	if err := s.flows.Save(ctx, flowID, flow); err != nil {
		return nil, fmt.Errorf("saving sign-in flow: %w", err)
	}
	return out, nil
}

func (s *SignInService) observe(op string, res otp.Result) {
	if op == "start" {
		return
	}
	outcome := "success"
	switch {
	case res.IsRateLimit:
		outcome = "rate_limited"
	case !res.Success:
		outcome = "failure"
	}
	s.metrics.ObserveOTP(op, outcome)
}

func viewOf(c *otp.Controller) FlowView {
	return FlowView{
		State:    c.State(),
		Email:    c.Email(),
		Cooldown: c.Cooldown(),
		Progress: c.Progress(),
	}
}

// SafeReturnTo keeps only same-site absolute paths.
func SafeReturnTo(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "/"
	}
	return target
}
