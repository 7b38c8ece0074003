// Package access decides who is asking and whether they may see a route.
//
// It runs once per request, in the Gate middleware:
//
//	session cookie --> Identity --> UserProfile --> Principal --> Admit(path)
//
// Handlers never look at cookies or profiles themselves. They read the
// Principal (plain data) from the request context.
package access

import (
	"net/url"
	"strings"

	"github.com/sakif/snuffspec/internal/model"
)

// Principal is the resolved view of the caller.
type Principal struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsAdmin         bool   `json:"isAdmin"`
	DisplayName     string `json:"displayName"`

	// Role is empty for a signed-in caller with no profile (the anonymous tier).
	Role model.Role `json:"role,omitempty"`
}

// Resolve combines the identity from the session with the profile, if any.
// Either may be nil.
func Resolve(identity *model.Identity, profile *model.UserProfile) Principal {
	if identity == nil {
		return Principal{DisplayName: "User"}
	}

	p := Principal{IsAuthenticated: true, DisplayName: displayName(identity, profile)}
	if profile != nil {
		p.Role = profile.Role
		p.IsAdmin = profile.Role == model.RoleAdmin
	}
	return p
}

// displayName prefers the profile's full name, then the local part of the
// email, then "User".
func displayName(identity *model.Identity, profile *model.UserProfile) string {
	if profile != nil {
		if name := strings.TrimSpace(profile.FullName); name != "" {
			return name
		}
	}
	if local, _, _ := strings.Cut(identity.Email, "@"); local != "" {
		return local
	}
	return "User"
}

// RouteClass is the admission tier of a path.
type RouteClass string

const (
	// Excluded paths bypass the gate entirely: assets and infrastructure.
	Excluded  RouteClass = "excluded"
	Public    RouteClass = "public"
	Protected RouteClass = "protected"
	AdminOnly RouteClass = "admin"
)

var (
	excludedPrefixes = []string{"/static/", "/favicon.ico", "/healthz", "/metrics"}
	publicPrefixes   = []string{"/auth/signin", "/auth/callback"}
	adminPrefixes    = []string{"/admin", "/setup", "/debug"}
)

// Classify maps a request path to its RouteClass by prefix. Admin prefixes
// are checked before public ones, and anything unmatched is Protected.
func Classify(path string) RouteClass {
	switch {
	case hasAnyPrefix(path, excludedPrefixes):
		return Excluded
	case hasAnyPrefix(path, adminPrefixes):
		return AdminOnly
	case hasAnyPrefix(path, publicPrefixes):
		return Public
	default:
		return Protected
	}
}

// IsSetupPath reports whether path belongs to the first-admin setup routes.
func IsSetupPath(path string) bool {
	return strings.HasPrefix(path, "/setup")
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Decision is the outcome of Admit. A non-empty Redirect means the request
// must not reach its handler.
type Decision struct {
	Redirect string
	Reason   string
}

func (d Decision) Allowed() bool { return d.Redirect == "" }

const (
	SignInPath = "/auth/signin"
	HomePath   = "/"
)

// SignInRedirect is the sign-in URL that returns the caller to path.
func SignInRedirect(path string) string {
	return SignInPath + "?" + url.Values{"redirectedFrom": {path}}.Encode()
}

// Admit decides whether p may see path.
//
// bootstrapOpen is true while no profile exists at all. It admits /setup
// without a session so the first administrator can be created.
func Admit(path string, p Principal, bootstrapOpen bool) Decision {
	switch Classify(path) {
	case Excluded, Public:
		return Decision{Reason: "allow"}

	case AdminOnly:
		if bootstrapOpen && IsSetupPath(path) {
			return Decision{Reason: "bootstrap"}
		}
		if !p.IsAuthenticated {
			return Decision{Redirect: SignInRedirect(path), Reason: "redirect_signin"}
		}
		if !p.IsAdmin {
			return Decision{Redirect: HomePath, Reason: "redirect_home"}
		}
		return Decision{Reason: "allow"}

	default:
		if !p.IsAuthenticated {
			return Decision{Redirect: SignInRedirect(path), Reason: "redirect_signin"}
		}
		return Decision{Reason: "allow"}
	}
}
