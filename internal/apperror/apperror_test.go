// GO TESTING BASICS:
// 1. Test files MUST end in _test.go — Go's tooling auto-discovers them
// 2. Test functions MUST start with "Test" and take *testing.T as the only param
// 3. Same package as the code being tested (so we can access unexported stuff)
// 4. Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("specification", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("email", "email is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "abc123"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated wraps ErrUnauthenticated",
			err:       Unauthenticated("sign in first"),
			target:    ErrUnauthenticated,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited(42),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "Configuration wraps ErrConfiguration",
			err:       Configuration("SHOPIFY_STORE_URL"),
			target:    ErrConfiguration,
			wantMatch: true,
		},
		{
			name:      "Configuration does NOT match ErrForbidden",
			err:       Configuration("SHOPIFY_STORE_URL"),
			target:    ErrForbidden,
			wantMatch: false,
		},
		{
			name:      "wrapped Upstream still matches",
			err:       fmt.Errorf("catalog: listing products: %w", Upstream("Shopify API", "boom")),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("specification", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("specification", "abc123"),
			wantMessage: "specification not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("email", "email is required"),
			wantMessage: "email is required",
		},
		{
			name:        "RateLimited mentions the wait",
			err:         RateLimited(42),
			wantMessage: "Email rate limit exceeded. Please wait 42 seconds before requesting another code.",
		},
		{
			name:        "Configuration lists every missing key",
			err:         Configuration("SHOPIFY_STORE_URL", "SHOPIFY_ACCESS_TOKEN"),
			wantMessage: "missing configuration: SHOPIFY_STORE_URL, SHOPIFY_ACCESS_TOKEN",
		},
		{
			name:        "Upstream names the service",
			err:         Upstream("Shopify API", "Not Found"),
			wantMessage: "Shopify API error: Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("specification", "abc123")
	if err.Unwrap() != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), ErrNotFound)
	}
}

func TestRateLimitedWaitSeconds(t *testing.T) {
	var appErr *AppError
	err := fmt.Errorf("otp: %w", RateLimited(17))
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As() should find the AppError")
	}
	if appErr.WaitSeconds != 17 {
		t.Errorf("WaitSeconds = %d, want 17", appErr.WaitSeconds)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("email", "invalid email format")

	if err.Field != "email" {
		t.Errorf("Field = %q, want %q", err.Field, "email")
	}
}
