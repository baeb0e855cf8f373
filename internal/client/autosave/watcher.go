package autosave

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
)

// Pinger probes server reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Listener receives connectivity transitions.
type Listener interface {
	SetOnline(online bool)
}

// Override pins the reported connectivity regardless of probes.
type Override int32

const (
	Auto Override = iota
	ForceOnline
	ForceOffline
)

const defaultProbeTimeout = 3 * time.Second

// Watcher turns periodic pings into online/offline transitions. While online
// it probes every interval; while offline it retries with exponential
// backoff capped at the interval.
type Watcher struct {
	pinger       Pinger
	target       Listener
	interval     time.Duration
	probeTimeout time.Duration
	log          logging.Logger
	newBackOff   func() backoff.BackOff

	override atomic.Int32
	kick     chan struct{}

	reported bool
	online   bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithProbeTimeout(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.probeTimeout = d }
}

func WithWatcherLogger(l logging.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// WithBackOff replaces the offline retry policy.
func WithBackOff(f func() backoff.BackOff) WatcherOption {
	return func(w *Watcher) { w.newBackOff = f }
}

func NewWatcher(p Pinger, target Listener, interval time.Duration, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		pinger:       p,
		target:       target,
		interval:     interval,
		probeTimeout: defaultProbeTimeout,
		log:          logging.Nop(),
		kick:         make(chan struct{}, 1),
	}
	w.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = w.interval / 10
		b.MaxInterval = w.interval
		b.MaxElapsedTime = 0
		return b
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// SetOverride switches between probing and a pinned state. It takes effect
// immediately.
func (w *Watcher) SetOverride(o Override) {
	w.override.Store(int32(o))
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Run probes until ctx is done. Only transitions are reported; the first
// observation is reported unconditionally.
func (w *Watcher) Run(ctx context.Context) {
	bo := w.newBackOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
		}

		online := w.check(ctx)
		if ctx.Err() != nil {
			return
		}
		w.report(ctx, online)

		next := w.interval
		if online {
			bo.Reset()
		} else if d := bo.NextBackOff(); d != backoff.Stop {
			next = d
		}
		timer.Reset(next)
	}
}

func (w *Watcher) check(ctx context.Context) bool {
	switch Override(w.override.Load()) {
	case ForceOnline:
		return true
	case ForceOffline:
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, w.probeTimeout)
	defer cancel()
	err := w.pinger.Ping(pctx)
	if err != nil {
		w.log.Debug(ctx, "ping failed", "error", err)
	}
	return err == nil
}

func (w *Watcher) report(ctx context.Context, online bool) {
	if w.reported && w.online == online {
		return
	}
	w.reported = true
	w.online = online
	if online {
		w.log.Info(ctx, "switched to online mode")
	} else {
		w.log.Info(ctx, "switched to offline mode")
	}
	w.target.SetOnline(online)
}
