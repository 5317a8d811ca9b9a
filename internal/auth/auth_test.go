package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

func signToken(t *testing.T, userID string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user@example.com",
			Issuer:    "climatehub-ms-user",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestParseClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	claims, err := ParseClaims(signToken(t, "42", exp))
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(exp))

	_, err = ParseClaims("a.b.c")
	assert.Error(t, err)
}

func TestUsable(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, Usable("", now))
	assert.False(t, Usable("   ", now))
	assert.True(t, Usable("opaque-token", now))
	assert.True(t, Usable(signToken(t, "1", now.Add(time.Hour)), now))
	assert.False(t, Usable(signToken(t, "1", now), now))
	assert.False(t, Usable(signToken(t, "1", now.Add(-time.Minute)), now))
	assert.False(t, Usable("not.a.jwt", now))
}

func TestStaticProvider(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	token := signToken(t, "7", clk.Now().Add(time.Minute))
	p := NewStaticProvider(token, clk)

	got, ok := p.Token(context.Background())
	require.True(t, ok)
	assert.Equal(t, token, got)

	clk.Advance(2 * time.Minute)
	_, ok = p.Token(context.Background())
	assert.False(t, ok, "expired token must be absent")

	_, ok = NewStaticProvider("", clk).Token(context.Background())
	assert.False(t, ok)
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	p := NewFileProvider(path, nil, zerolog.Nop())
	ctx := context.Background()

	_, ok := p.Token(ctx)
	assert.False(t, ok, "missing file means no token")

	require.NoError(t, WriteTokenFile(path, "first"))
	_, ok = p.Token(ctx)
	assert.False(t, ok, "absent result stays cached until invalidated")

	p.Invalidate()
	got, ok := p.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, "first", got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileProviderInvalidateDuringRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, WriteTokenFile(path, "old"))
	p := NewFileProvider(path, nil, zerolog.Nop())
	ctx := context.Background()

	// The file changes while the read is in flight.
	p.readFile = func(name string) ([]byte, error) {
		data, err := os.ReadFile(name)
		require.NoError(t, WriteTokenFile(path, "new"))
		p.Invalidate()
		return data, err
	}
	got, ok := p.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, "old", got)

	p.readFile = os.ReadFile
	got, ok = p.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, "new", got, "stale read must not be cached over an invalidation")
}

func TestFileProviderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, WriteTokenFile(path, "first"))
	p := NewFileProvider(path, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	got, ok := p.Token(ctx)
	require.True(t, ok)
	require.Equal(t, "first", got)

	// Give the watcher time to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, WriteTokenFile(path, "second"))

	assert.Eventually(t, func() bool {
		got, ok := p.Token(ctx)
		return ok && got == "second"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestWriteTokenFileRejectsEmpty(t *testing.T) {
	assert.Error(t, WriteTokenFile(filepath.Join(t.TempDir(), "token"), " "))
}
