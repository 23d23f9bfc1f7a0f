package ratelimit

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrTokenWaitTimeout is returned when no request token could be acquired
// within the gateway's wait budget. It is distinguishable from a policy-level
// rate-limit failure via errors.Is.
var ErrTokenWaitTimeout = errors.New("timed out waiting for a request token")

// ErrRetriesExhausted wraps the last rate-limit failure once the retry budget
// is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RateLimitError marks a call rejected by the inference service for pacing
// reasons. RetryAfter carries the server-suggested wait when the transport
// surfaced one; otherwise the gateway falls back to parsing Message.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %s", e.Message)
}

var retryAfterPattern = regexp.MustCompile(`after (\d+) seconds`)

// retryAfterHint extracts a server-suggested wait duration from an error
// message. The second return reports whether a suggestion was found.
func retryAfterHint(message string) (time.Duration, bool) {
	match := retryAfterPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}

	seconds, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
