package keystore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"
)

// Reload results reported to the reload hook.
const (
	ReloadSuccess = "success"
	ReloadFailure = "failure"
)

const defaultDebounce = 100 * time.Millisecond

// LoadFunc produces the certificate to serve.
type LoadFunc func() (tls.Certificate, error)

// Reloader serves a certificate through tls.Config.GetCertificate and replaces it when
// the keystore file changes. A failed reload keeps the previous certificate.
type Reloader struct {
	path     string
	load     LoadFunc
	current  *atomic.Pointer[tls.Certificate]
	logger   *slog.Logger
	debounce time.Duration
	onReload func(result string)
	now      func() time.Time

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithReloadHook is called after every reload attempt with ReloadSuccess or ReloadFailure.
func WithReloadHook(fn func(result string)) ReloaderOption {
	return func(r *Reloader) { r.onReload = fn }
}

// WithDebounce sets how long to wait for writes to settle before reloading.
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// WithReloaderLogger sets the logger.
func WithReloaderLogger(logger *slog.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReloaderClock sets the clock used by Check.
func WithReloaderClock(now func() time.Time) ReloaderOption {
	return func(r *Reloader) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReloader loads the initial certificate. path is the file watched by Watch.
func NewReloader(path string, load LoadFunc, opts ...ReloaderOption) (*Reloader, error) {
	r := &Reloader{
		path:     filepath.Clean(path),
		load:     load,
		logger:   slog.Default(),
		debounce: defaultDebounce,
		onReload: func(string) {},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	cert, err := load()
	if err != nil {
		return nil, err
	}
	r.current = atomic.NewPointer(&cert)
	return r, nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return r.current.Load(), nil
}

// Certificate returns the certificate currently served.
func (r *Reloader) Certificate() tls.Certificate {
	return *r.current.Load()
}

// Reload loads the keystore again and swaps it in on success.
func (r *Reloader) Reload() error {
	cert, err := r.load()
	if err != nil {
		r.logger.Error("Keystore reload failed; keeping previous certificate", "path", r.path, "error", err)
		r.onReload(ReloadFailure)
		return err
	}
	r.current.Store(&cert)
	r.logger.Info("Keystore reloaded", "path", r.path)
	r.onReload(ReloadSuccess)
	return nil
}

// Check reports an error once the served leaf is outside its validity window.
func (r *Reloader) Check(context.Context) error {
	leaf := r.current.Load().Leaf
	if leaf == nil {
		return nil
	}
	now := r.now()
	if now.After(leaf.NotAfter) {
		return fmt.Errorf("served certificate expired at %s", leaf.NotAfter.UTC().Format(time.RFC3339))
	}
	if now.Before(leaf.NotBefore) {
		return fmt.Errorf("served certificate not valid before %s", leaf.NotBefore.UTC().Format(time.RFC3339))
	}
	return nil
}

// Watch starts watching the keystore's directory, so replacements by rename are seen
// too. It returns once the watcher is registered; events are handled until ctx ends or
// Close is called.
func (r *Reloader) Watch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher != nil {
		return fmt.Errorf("keystore %s is already watched", r.path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch keystore directory %q: %w", filepath.Dir(r.path), err)
	}

	r.watcher = watcher
	r.done = make(chan struct{})
	go r.watchFiles(ctx, watcher, r.done)

	r.logger.Info("Watching keystore for changes", "path", r.path)
	return nil
}

func (r *Reloader) watchFiles(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.logger.Debug("Keystore file changed", "file", event.Name, "operation", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = r.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("Keystore watcher error", "error", err)
		}
	}
}

// Close stops watching. It is safe to call when Watch was never started.
func (r *Reloader) Close() error {
	r.mu.Lock()
	watcher, done := r.watcher, r.done
	r.watcher, r.done = nil, nil
	r.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}
