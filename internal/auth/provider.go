package auth

import (
	"context"
	"strings"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

// Provider returns the current bearer token, or false when none is usable.
type Provider interface {
	Token(ctx context.Context) (string, bool)
}

// StaticProvider serves a fixed token, typically from configuration.
type StaticProvider struct {
	token string
	clock clock.Clock
}

// NewStaticProvider creates a provider for token.
func NewStaticProvider(token string, clk clock.Clock) *StaticProvider {
	if clk == nil {
		clk = clock.Real{}
	}
	return &StaticProvider{token: strings.TrimSpace(token), clock: clk}
}

// Token returns the configured token while it is usable.
func (p *StaticProvider) Token(context.Context) (string, bool) {
	if !Usable(p.token, p.clock.Now()) {
		return "", false
	}
	return p.token, true
}
