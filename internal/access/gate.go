package access

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/auth"
	"github.com/sakif/snuffspec/internal/metrics"
	"github.com/sakif/snuffspec/internal/model"
	"github.com/sakif/snuffspec/internal/repository"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	identityKey  contextKey = "identity"
)

// WithPrincipal stores the resolved caller in ctx. identity may be nil.
func WithPrincipal(ctx context.Context, p Principal, identity *model.Identity) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	if identity != nil {
		ctx = context.WithValue(ctx, identityKey, *identity)
	}
	return ctx
}

// PrincipalFromContext returns the caller resolved by the Gate. Outside
// the Gate it returns the unauthenticated Principal.
func PrincipalFromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey).(Principal); ok {
		return p
	}
	return Resolve(nil, nil)
}

// IdentityFromContext returns the signed-in Identity, if any.
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	if !ok {
		return nil, false
	}
	return &identity, true
}

// Gate resolves the caller and enforces Admit on every request.
type Gate struct {
	sessions auth.SessionProvider
	profiles repository.ProfileRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewGate(sessions auth.SessionProvider, profiles repository.ProfileRepository, m *metrics.Metrics, logger *slog.Logger) *Gate {
	g := &Gate{sessions: sessions, profiles: profiles, metrics: m, logger: logger}

	sessions.OnSessionChange(func(ev auth.SessionEvent) {
		logger.Info("session changed",
			slog.String("event", string(ev.Kind)),
			slog.String("user_id", ev.Identity.ID),
		)
	})
	return g
}

// Handler is the middleware. Redirects use 307 so the method is kept.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		class := Classify(path)
		if class == Excluded {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		identity := g.identity(r)
		principal := Resolve(identity, g.profile(ctx, identity))

		bootstrapOpen := false
		if class == AdminOnly && IsSetupPath(path) && !principal.IsAdmin {
			bootstrapOpen = g.bootstrapOpen(ctx)
		}

		decision := Admit(path, principal, bootstrapOpen)
		g.metrics.ObserveAdmission(string(class), decision.Reason)

		if !decision.Allowed() {
			http.Redirect(w, r, decision.Redirect, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal, identity)))
	})
}

func (g *Gate) identity(r *http.Request) *model.Identity {
	identity, err := g.sessions.Session(r)
	if err != nil {
		g.logger.Warn("reading session", slog.String("error", err.Error()))
		return nil
	}
	return identity
}

// profile returns nil for the anonymous tier. A lookup failure is treated
// the same way, so admin routes fail closed.
func (g *Gate) profile(ctx context.Context, identity *model.Identity) *model.UserProfile {
	if identity == nil {
		return nil
	}
	profile, err := g.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			g.logger.Error("loading profile",
				slog.String("user_id", identity.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return profile
}

func (g *Gate) bootstrapOpen(ctx context.Context) bool {
	count, err := g.profiles.CountProfiles(ctx)
	if err != nil {
		g.logger.Error("counting profiles", slog.String("error", err.Error()))
		return false
	}
	return count == 0
}
