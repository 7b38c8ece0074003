package otp

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sakif/snuffspec/internal/gateway"
)

// DefaultWaitSeconds is used when a rate-limit message carries no number.
const DefaultWaitSeconds = 60

var (
	waitPattern = regexp.MustCompile(`(\d+) seconds`)

	rateLimitMarkers = []string{
		"rate limit",
		"too many requests",
		"security purposes",
		"seconds",
	}
)

// DetectRateLimit reports whether err is the gateway asking us to slow down,
// and for how long.
//
// The gateway does not always answer 429, so the message text is checked
// too. The wait is the first "<N> seconds" in the text, else
// DefaultWaitSeconds.
func DetectRateLimit(err error) (limited bool, waitSeconds int) {
	if err == nil {
		return false, 0
	}

	msg := errorMessage(err)
	lower := strings.ToLower(msg)

	var gwErr *gateway.Error
	limited = errors.As(err, &gwErr) && gwErr.TooManyRequests()
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			limited = true
			break
		}
	}
	if !limited {
		return false, 0
	}

	if m := waitPattern.FindStringSubmatch(lower); m != nil {
		if n, convErr := strconv.Atoi(m[1]); convErr == nil {
			return true, n
		}
	}
	return true, DefaultWaitSeconds
}

// errorMessage returns the gateway's own wording when there is one.
func errorMessage(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	return err.Error()
}

func rateLimitMessage(waitSeconds int) string {
	return fmt.Sprintf("Email rate limit exceeded. Please wait %d seconds before requesting another code.", waitSeconds)
}
