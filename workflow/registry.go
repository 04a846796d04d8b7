package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry resolves LoRA names against the files of a local directory laid
// out like the server's loras folder. A name resolves to the first file (in
// lexical order) whose name contains it.
type Registry struct {
	dir    string
	logger *slog.Logger

	mu    sync.RWMutex
	files []string
}

// NewRegistry scans dir and returns a resolver over its contents. Call
// Refresh, or run Watch on a goroutine, to pick up files added later.
func NewRegistry(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{dir: dir, logger: logger}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// Refresh rescans the directory.
func (r *Registry) Refresh() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("lora registry: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	r.mu.Lock()
	r.files = files
	r.mu.Unlock()
	return nil
}

// Resolve implements LoRAResolver.
func (r *Registry) Resolve(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.files {
		if strings.Contains(f, name) {
			return filepath.Join(r.dir, f), nil
		}
	}
	return "", fmt.Errorf("lora %q not in %s: %w", name, r.dir, ErrLoRANotFound)
}

// Watch rescans the directory whenever files come and go, until ctx is
// done. Meant for long sessions where the loras folder changes underneath
// the client.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(r.dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Refresh(); err != nil {
				r.logger.Warn("lora registry rescan failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("lora registry watcher", "error", err)
		}
	}
}
