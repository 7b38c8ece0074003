// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository / Gateway     → reads/writes durable state
//
// Services take the acting Identity as a plain argument. They never look at
// cookies or request contexts, so the same rules apply whoever calls them.
package service

import (
	"fmt"
	"strings"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// requireIdentity turns a missing identity into the sign-in error for action,
// e.g. "You must be signed in to save a specification".
func requireIdentity(identity *model.Identity, action string) error {
	if identity == nil || identity.ID == "" {
		return apperror.Unauthenticated(fmt.Sprintf("You must be signed in to %s", action))
	}
	return nil
}

func clampLimit(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	return limit, max(offset, 0)
}

// normalizeEmail trims and lowercases. It only rejects values that cannot
// be an address at all; the gateway does the real validation.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "Email is required")
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(email, " \t\r\n") {
		return "", apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	return email, nil
}
