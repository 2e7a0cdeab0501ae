package rbac

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// View caches the latest Snapshot for read-heavy callers such as the
// authorization middleware. It never applies mutations itself: a change
// event marks it stale and the next read reloads from the store. A snapshot
// older than the max age is reloaded too, which bounds staleness when an
// event is lost.
type View struct {
	service *Service
	logger  *slog.Logger
	group   singleflight.Group
	maxAge  time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	snap     Snapshot
	loaded   bool
	stale    bool
	loadedAt time.Time
}

// DefaultViewMaxAge caps how long a snapshot is served without a reload.
const DefaultViewMaxAge = 30 * time.Second

// ViewOption configures a View.
type ViewOption func(*View)

// WithMaxAge sets the snapshot max age. Zero or negative disables expiry.
func WithMaxAge(d time.Duration) ViewOption {
	return func(v *View) { v.maxAge = d }
}

// NewView constructs a View over service.
func NewView(service *Service, logger *slog.Logger, opts ...ViewOption) *View {
	if logger == nil {
		logger = slog.Default()
	}
	v := &View{service: service, logger: logger, maxAge: DefaultViewMaxAge, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Current returns the cached snapshot, reloading it when missing, stale or
// older than the max age.
func (v *View) Current(ctx context.Context) (Snapshot, error) {
	v.mu.RLock()
	snap, fresh := v.snap, v.loaded && !v.stale
	if fresh && v.maxAge > 0 && v.now().Sub(v.loadedAt) > v.maxAge {
		fresh = false
	}
	v.mu.RUnlock()
	if fresh {
		return snap, nil
	}
	return v.Refresh(ctx)
}

// Refresh reloads from the store. Concurrent callers share one load. On
// failure the previous snapshot is kept and the error returned.
func (v *View) Refresh(ctx context.Context) (Snapshot, error) {
	res, err, _ := v.group.Do("snapshot", func() (interface{}, error) {
		v.mu.Lock()
		v.stale = false
		v.mu.Unlock()

		snap, err := v.service.Snapshot(ctx)
		if err != nil {
			v.mu.Lock()
			v.stale = true
			v.mu.Unlock()
			return nil, err
		}
		v.mu.Lock()
		v.snap = snap
		v.loaded = true
		v.loadedAt = v.now()
		v.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return res.(Snapshot), nil
}

// Invalidate marks the snapshot stale.
func (v *View) Invalidate() {
	v.mu.Lock()
	v.stale = true
	v.mu.Unlock()
}

// Run subscribes the view to change events until ctx is cancelled.
func (v *View) Run(ctx context.Context) error {
	return v.service.Subscribe(ctx, func(c Change) {
		v.logger.Debug("rbac snapshot invalidated", slog.String("table", c.Table), slog.String("kind", string(c.Kind)))
		v.Invalidate()
	})
}
