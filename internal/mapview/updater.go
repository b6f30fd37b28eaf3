package mapview

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Updater serializes reconciles for one surface. Desired states are
// submitted from any goroutine; only the latest pending state is applied
// (last write wins), and nothing is applied before MarkReady.
type Updater struct {
	rec       *Reconciler
	surface   Surface
	log       *zap.Logger
	onApplied func(ViewState)

	mu      sync.Mutex
	pending *ViewState
	ready   bool
	wake    chan struct{}
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// OnApplied registers a hook that runs on the Run goroutine after every
// successful reconcile.
func OnApplied(fn func(ViewState)) UpdaterOption {
	return func(u *Updater) { u.onApplied = fn }
}

// UpdaterLogger sets the logger.
func UpdaterLogger(log *zap.Logger) UpdaterOption {
	return func(u *Updater) { u.log = log }
}

// NewUpdater creates an updater for surface.
func NewUpdater(rec *Reconciler, surface Surface, opts ...UpdaterOption) *Updater {
	u := &Updater{
		rec:     rec,
		surface: surface,
		log:     zap.NewNop(),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Submit queues a desired state, replacing any state not yet applied.
func (u *Updater) Submit(state ViewState) {
	st := state.Clone()
	u.mu.Lock()
	u.pending = &st
	u.mu.Unlock()
	u.signal()
}

// MarkReady reports that the surface finished initializing.
func (u *Updater) MarkReady() {
	u.mu.Lock()
	u.ready = true
	u.mu.Unlock()
	u.signal()
}

func (u *Updater) signal() {
	select {
	case u.wake <- struct{}{}:
	default:
		// a wake-up is already queued
	}
}

func (u *Updater) next() (ViewState, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ready || u.pending == nil {
		return ViewState{}, false
	}
	st := *u.pending
	u.pending = nil
	return st, true
}

// Run applies queued states until ctx is done. A reconcile error stops the
// loop and is returned.
func (u *Updater) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-u.wake:
		}

		st, ok := u.next()
		if !ok {
			continue
		}
		if err := u.rec.Reconcile(u.surface, st); err != nil {
			u.log.Error("reconcile failed", zap.Error(err))
			return err
		}
		u.log.Debug("reconciled",
			zap.String("baseMap", string(st.BaseMap)),
			zap.Int("layers", len(st.Layers)))
		if u.onApplied != nil {
			u.onApplied(st)
		}
	}
}
