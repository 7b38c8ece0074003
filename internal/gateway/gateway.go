// Package gateway describes the credential gateway: the service that issues
// and verifies one-time codes and owns the identity records.
//
// This application never stores credentials itself. It asks the gateway to
// send a code, asks it whether a code is right, and asks it to create or
// remove identities on behalf of administrators.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sakif/snuffspec/internal/model"
)

// SendOptions controls code issuance.
// AllowNewUser false means an unknown email is rejected instead of provisioned.
type SendOptions struct {
	AllowNewUser bool
}

// Authenticator is the sign-in half of the gateway.
type Authenticator interface {
	SendCode(ctx context.Context, email string, opts SendOptions) error
	VerifyCode(ctx context.Context, email, code string) (*model.Identity, error)
}

// IdentityAdmin is the privileged half, used by the admin user manager.
//
// FindIdentityByEmail returns apperror.ErrNotFound when no identity exists.
type IdentityAdmin interface {
	CreateIdentity(ctx context.Context, email, fullName string) (*model.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
	FindIdentityByEmail(ctx context.Context, email string) (*model.Identity, error)
	ListIdentities(ctx context.Context) ([]model.Identity, error)
}

// Error is a failure reported by the gateway itself.
//
// The message text matters: the OTP controller reads it to detect rate
// limiting, so implementations pass the gateway's wording through unchanged.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway: %s (%s)", e.Message, e.Code)
	}
	return "gateway: " + e.Message
}

// TooManyRequests reports whether the gateway answered 429.
func (e *Error) TooManyRequests() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
