package autosave

import (
	"sort"
	"sync"
)

// Registry tracks the schedulers of open drafts and fans connectivity
// changes out to them.
type Registry struct {
	mu     sync.Mutex
	byID   map[string]*Scheduler
	online bool
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Scheduler)}
}

// Track adds s, replacing and stopping any scheduler already tracked under
// the same id. The new scheduler inherits the current connectivity.
func (r *Registry) Track(s *Scheduler) {
	r.mu.Lock()
	prev := r.byID[s.ID()]
	r.byID[s.ID()] = s
	online := r.online
	r.mu.Unlock()

	if prev != nil && prev != s {
		prev.Stop()
	}
	s.SetOnline(online)
}

// Untrack stops and forgets the scheduler of id.
func (r *Registry) Untrack(id string) {
	r.mu.Lock()
	s := r.byID[id]
	delete(r.byID, id)
	r.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

func (r *Registry) Get(id string) (*Scheduler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// IDs returns the tracked identities in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// SetOnline records connectivity and forwards it to every scheduler.
func (r *Registry) SetOnline(online bool) {
	for _, s := range r.snapshot(func() { r.online = online }) {
		s.SetOnline(online)
	}
}

// StopAll stops every scheduler and waits for in-flight saves. Schedulers
// stay tracked.
func (r *Registry) StopAll() {
	for _, s := range r.snapshot(nil) {
		s.Stop()
	}
}

func (r *Registry) snapshot(mutate func()) []*Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mutate != nil {
		mutate()
	}
	out := make([]*Scheduler, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}
