package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/good-yellow-bee/climalert/internal/clock"
)

// FileProvider reads the token from a file and caches it until the file
// changes on disk.
type FileProvider struct {
	path   string
	clock  clock.Clock
	logger zerolog.Logger

	group    singleflight.Group
	readFile func(string) ([]byte, error)

	mu     sync.RWMutex
	token  string
	cached bool
	// gen is bumped by Invalidate; a load only caches if gen is unchanged.
	gen uint64
}

// NewFileProvider creates a provider for the token stored at path.
func NewFileProvider(path string, clk clock.Clock, logger zerolog.Logger) *FileProvider {
	if clk == nil {
		clk = clock.Real{}
	}
	return &FileProvider{path: path, clock: clk, logger: logger, readFile: os.ReadFile}
}

// Path returns the token file location.
func (p *FileProvider) Path() string {
	return p.path
}

// Token returns the token from the file while it is usable. A missing or
// empty file means no token.
func (p *FileProvider) Token(ctx context.Context) (string, bool) {
	p.mu.RLock()
	token, cached := p.token, p.cached
	p.mu.RUnlock()

	if !cached {
		v, err, _ := p.group.Do("read", func() (any, error) {
			return p.load()
		})
		if err != nil {
			p.logger.Warn().Err(err).Str("path", p.path).Msg("read token file")
			return "", false
		}
		token = v.(string)
	}

	if !Usable(token, p.clock.Now()) {
		return "", false
	}
	return token, true
}

// Invalidate drops the cached token so the next call rereads the file.
func (p *FileProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.cached = false
	p.gen++
	p.mu.Unlock()
}

func (p *FileProvider) load() (string, error) {
	p.mu.RLock()
	gen := p.gen
	p.mu.RUnlock()

	data, err := p.readFile(p.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	token := strings.TrimSpace(string(data))

	p.mu.Lock()
	if p.gen == gen {
		p.token = token
		p.cached = true
	}
	p.mu.Unlock()
	return token, nil
}

// Watch invalidates the cache whenever the token file is written, replaced
// or removed. It blocks until ctx is done.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic replace-by-rename is seen.
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	name := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				p.logger.Debug().Str("op", event.Op.String()).Msg("token file changed")
				p.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn().Err(err).Msg("token watcher error")
		}
	}
}

// WriteTokenFile atomically stores token at path with owner-only access.
func WriteTokenFile(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename token: %w", err)
	}
	return nil
}
