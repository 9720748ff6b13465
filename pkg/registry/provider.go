package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reload outcomes reported to a ReloadRecorder.
const (
	ReloadSuccess = "success"
	ReloadFailed  = "validation_failed"
)

// ReloadRecorder receives reload outcomes, typically for metrics.
type ReloadRecorder interface {
	RecordConfigReload(status string)
}

// Provider serves the current registry snapshot and swaps it atomically on reload.
type Provider struct {
	path     string
	current  atomic.Pointer[Registry]
	logger   *slog.Logger
	recorder ReloadRecorder

	mu           sync.Mutex
	reloadMu     sync.Mutex
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	debounceTime time.Duration
}

// NewProvider loads the registry at path. A bad initial document fails
// startup with a *ConfigError.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	reg, err := LoadFile(absPath)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		path:         absPath,
		logger:       logger,
		debounceTime: 200 * time.Millisecond,
	}
	p.current.Store(reg)
	logger.Info("Registry loaded", "path", absPath, "tools", reg.Len())
	return p, nil
}

// SetRecorder sets the recorder notified of reload outcomes.
func (p *Provider) SetRecorder(r ReloadRecorder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorder = r
}

// Current returns the active snapshot. Safe for concurrent use.
func (p *Provider) Current() *Registry {
	return p.current.Load()
}

// Path returns the watched configuration path.
func (p *Provider) Path() string {
	return p.path
}

// Reload re-reads the configuration. The active snapshot is replaced only
// when the new document validates; otherwise the previous one stays live.
func (p *Provider) Reload() (*Registry, error) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	start := time.Now()
	reg, err := LoadFile(p.path)
	if err != nil {
		p.logger.Error("Registry reload failed, keeping previous snapshot", "path", p.path, "error", err)
		p.record(ReloadFailed)
		return nil, err
	}

	p.current.Store(reg)
	p.logger.Info("Registry reloaded", "path", p.path, "tools", reg.Len(), "duration", time.Since(start))
	p.record(ReloadSuccess)
	return reg, nil
}

func (p *Provider) record(status string) {
	p.mu.Lock()
	r := p.recorder
	p.mu.Unlock()
	if r != nil {
		r.RecordConfigReload(status)
	}
}

// Watch reloads the registry whenever the file changes. The directory is
// watched because editors often save by renaming a temp file.
func (p *Provider) Watch(ctx context.Context, onChange func(*Registry)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}

	p.watcher = watcher
	p.stopCh = make(chan struct{})
	go p.watchLoop(ctx, watcher, p.stopCh, onChange)

	p.logger.Info("Registry watcher started", "path", p.path)
	return nil
}

func (p *Provider) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, stopCh chan struct{}, onChange func(*Registry)) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := func() {
		reg, err := p.Reload()
		if err == nil && onChange != nil {
			onChange(reg)
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			p.logger.Debug("Registry file event", "event", event.Op.String(), "file", event.Name)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(p.debounceTime, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("Registry watcher error", "error", err)

		case <-stopCh:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Close stops the watcher, if running.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher == nil {
		return nil
	}
	close(p.stopCh)
	err := p.watcher.Close()
	p.watcher = nil
	return err
}
