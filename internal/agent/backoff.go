package agent

import "time"

// ReconnectPolicy implements linear backoff with a bounded number of attempts.
type ReconnectPolicy struct {
	BaseDelay   time.Duration // Delay unit per attempt (default: 3s)
	MaxAttempts int           // Attempts allowed before giving up (default: 5)
}

// DefaultReconnectPolicy returns the default policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   3 * time.Second,
		MaxAttempts: 5,
	}
}

// NextDelay returns the delay after the attempt-th consecutive failure,
// counting from 1.
func (p ReconnectPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// ShouldRetry reports whether open attempt number attempt is still within
// budget. The first open of a subscription is attempt 1.
func (p ReconnectPolicy) ShouldRetry(attempt int) bool {
	return attempt <= p.MaxAttempts
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}
