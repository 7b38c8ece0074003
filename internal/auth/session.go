package auth

import (
	"errors"
	"net/http"
	"sync"

	"github.com/sakif/snuffspec/internal/model"
)

// SessionCookieName is the HttpOnly cookie holding the session JWT.
const SessionCookieName = "session"

// SessionEventKind says what happened to a session.
type SessionEventKind string

const (
	SignedIn  SessionEventKind = "signed_in"
	SignedOut SessionEventKind = "signed_out"
)

type SessionEvent struct {
	Kind     SessionEventKind
	Identity model.Identity
}

// SessionProvider is everything the access layer needs to know about
// sessions. Session returns (nil, nil) when the request carries none.
type SessionProvider interface {
	Session(r *http.Request) (*model.Identity, error)
	OnSessionChange(fn func(SessionEvent))
}

var _ SessionProvider = (*CookieSessions)(nil)

// CookieSessions keeps the session in a signed JWT cookie.
//
// COOKIE FLAGS:
//   - HttpOnly: JavaScript cannot read it (XSS can't steal it)
//   - SameSite=Lax: not sent on cross-site POSTs
//   - Secure: on in production, off for http://localhost
type CookieSessions struct {
	tokens *TokenService
	secure bool

	mu        sync.RWMutex
	listeners []func(SessionEvent)
}

func NewCookieSessions(tokens *TokenService, secure bool) *CookieSessions {
	return &CookieSessions{tokens: tokens, secure: secure}
}

// Session reads and validates the cookie. An invalid or expired token is
// treated as no session, not as an error: the person simply signs in again.
func (s *CookieSessions) Session(r *http.Request) (*model.Identity, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, nil
		}
		return nil, err
	}
	identity, err := s.tokens.Validate(cookie.Value)
	if err != nil {
		return nil, nil
	}
	return identity, nil
}

// OnSessionChange registers fn to be called after Establish and Clear.
func (s *CookieSessions) OnSessionChange(fn func(SessionEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Establish signs a token for identity and sets the cookie.
func (s *CookieSessions) Establish(w http.ResponseWriter, identity model.Identity) error {
	token, err := s.tokens.Generate(identity)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	s.emit(SessionEvent{Kind: SignedIn, Identity: identity})
	return nil
}

// Clear deletes the cookie. The JWT stays technically valid until it
// expires, but the browser no longer sends it.
func (s *CookieSessions) Clear(w http.ResponseWriter, r *http.Request) {
	identity, _ := s.Session(r)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	if identity != nil {
		s.emit(SessionEvent{Kind: SignedOut, Identity: *identity})
	}
}

func (s *CookieSessions) emit(ev SessionEvent) {
	s.mu.RLock()
	listeners := append([]func(SessionEvent){}, s.listeners...)
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
