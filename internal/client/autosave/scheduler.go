package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/dmitrijs2005/draftkeeper/internal/common"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
	"github.com/google/uuid"
)

const (
	DefaultDelay                  = 5 * time.Second
	DefaultRemoteTimeout          = 30 * time.Second
	DefaultFailureNoticeThreshold = 3
)

// ErrNotRunning is returned for edits and saves on a stopped scheduler.
var ErrNotRunning = errors.New("autosave: scheduler not running")

// State is the save lifecycle of one draft.
type State int

const (
	Idle State = iota
	PendingWrite
	Saving
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PendingWrite:
		return "pending"
	case Saving:
		return "saving"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Notice is a user-facing hint about where the latest edits live.
type Notice string

const (
	NoticeNone         Notice = ""
	NoticeSavedLocally Notice = "saved-locally"
	NoticeSyncDelayed  Notice = "sync-delayed"
	NoticeNoSafetyNet  Notice = "no-safety-net"
)

// Status is a snapshot published to subscribers after every change.
type Status struct {
	ID      string
	State   State
	Online  bool
	Running bool

	// SavedLocallyOnly is set when the latest save reached local storage
	// but not the server.
	SavedLocallyOnly          bool
	LastSavedAt               time.Time
	ServerVersion             int64
	ConsecutiveRemoteFailures int
	Notice                    Notice
	LastError                 error
}

// Controller is the backup surface a scheduler drives.
type Controller interface {
	Backup(ctx context.Context, id string, payload *models.DraftPayload, credential string) error
	SyncToServer(ctx context.Context, id, credential string, save models.RemoteSaveFunc) (models.SyncResult, error)
}

// Scheduler debounces edits of one draft into saves. A new scheduler is
// stopped; call Start once the restore decision has been made.
type Scheduler struct {
	id    string
	ctrl  Controller
	creds credentials.Provider
	save  models.RemoteSaveFunc

	delay         time.Duration
	remoteTimeout time.Duration
	threshold     int
	log           logging.Logger
	now           func() time.Time

	mu      sync.Mutex
	status  Status
	pending *models.DraftPayload
	timer   *time.Timer
	seq     uint64
	syncing bool
	runCtx  context.Context
	cancel  context.CancelFunc
	subs    map[int]func(Status)
	nextSub int

	// saveMu serialises saves and reconnect syncs.
	saveMu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.remoteTimeout = d }
}

func WithFailureNoticeThreshold(n int) Option {
	return func(s *Scheduler) { s.threshold = n }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler returns a stopped scheduler for draft id. save is the remote
// persistence used both by SyncToServer and, when local backup fails, directly.
func NewScheduler(id string, ctrl Controller, creds credentials.Provider, save models.RemoteSaveFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		id:            id,
		ctrl:          ctrl,
		creds:         creds,
		save:          save,
		delay:         DefaultDelay,
		remoteTimeout: DefaultRemoteTimeout,
		threshold:     DefaultFailureNoticeThreshold,
		log:           logging.Nop(),
		now:           time.Now,
		status:        Status{ID: id},
		subs:          make(map[int]func(Status)),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("draft", id)
	return s
}

func (s *Scheduler) ID() string { return s.id }

// Status returns the current snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe registers fn for status updates and returns a function that
// removes it. fn is called outside the scheduler lock but must not block.
func (s *Scheduler) Subscribe(fn func(Status)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// publishLocked snapshots status and subscribers; the caller must hold mu and
// invoke the returned function after unlocking.
func (s *Scheduler) publishLocked() func() {
	st := s.status
	subs := make([]func(Status), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(st)
		}
	}
}

// Start resumes the scheduler. A payload left pending by Stop is re-armed.
// When already online, a backup kept from before (an accepted restore, or
// edits made while stopped offline) is synced once.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		return
	}
	s.status.Running = true
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	if s.pending != nil {
		s.armLocked()
	}
	startSync := s.status.Online && !s.syncing
	if startSync {
		s.syncing = true
	}
	ctx := s.runCtx
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	if startSync {
		go s.reconnectSync(ctx)
	}
}

// Stop cancels the debounce timer and any in-flight save and waits for it
// to return. Nothing is written after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.status.Running {
		s.mu.Unlock()
		return
	}
	s.status.Running = false
	s.disarmLocked()
	s.cancel()
	if s.pending != nil {
		s.status.State = PendingWrite
	} else if s.status.State == Saving {
		s.status.State = Idle
	}
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	// wait for an in-flight save to observe the stop
	s.saveMu.Lock()
	s.saveMu.Unlock()
}

func (s *Scheduler) armLocked() {
	s.disarmLocked()
	seq := s.seq
	s.timer = time.AfterFunc(s.delay, func() { s.fire(seq) })
}

func (s *Scheduler) disarmLocked() {
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Edit records payload as the latest content and restarts the debounce
// delay. Only the payload present when the delay elapses is saved.
func (s *Scheduler) Edit(payload *models.DraftPayload) error {
	if payload == nil {
		return errors.New("autosave: nil payload")
	}
	s.mu.Lock()
	if !s.status.Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.pending = payload.Clone()
	s.armLocked()
	if s.status.State != Saving {
		s.status.State = PendingWrite
	}
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
	return nil
}

func (s *Scheduler) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq || !s.status.Running || s.pending == nil {
		s.mu.Unlock()
		return
	}
	p := s.pending
	s.pending = nil
	s.timer = nil
	ctx := s.runCtx
	s.mu.Unlock()

	_ = s.runSave(ctx, p)
}

// ForceSave cancels the debounce and saves immediately. A nil payload saves
// whatever edit is pending; with nothing pending it is a no-op.
func (s *Scheduler) ForceSave(ctx context.Context, payload *models.DraftPayload) error {
	s.mu.Lock()
	if !s.status.Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.disarmLocked()
	p := s.pending
	if payload != nil {
		p = payload.Clone()
	}
	s.pending = nil
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	return s.runSave(ctx, p)
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.status.State = st
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}

// runSave backs p up locally and, when online, pushes it to the server. It
// returns nil if at least one of the two succeeded.
func (s *Scheduler) runSave(ctx context.Context, p *models.DraftPayload) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.status.Running {
		// Stop raced with the timer; keep the edit for the next Start.
		if s.pending == nil {
			s.pending = p
		}
		s.mu.Unlock()
		return ErrNotRunning
	}
	online := s.status.Online
	// the server accepted an earlier save from this editor; rebase onto it
	if s.status.ServerVersion > p.Version {
		p = p.Clone()
		p.Version = s.status.ServerVersion
	}
	s.mu.Unlock()
	s.setState(Saving)

	log := s.log.With("op", uuid.NewString())
	cred, ok := s.creds.SessionCredential(ctx)

	var localErr error
	if ok {
		localErr = s.ctrl.Backup(ctx, s.id, p, cred)
	} else {
		localErr = common.ErrNoCredential
	}
	if localErr != nil {
		log.Warn(ctx, "local backup failed", "error", localErr)
	}

	var (
		version   int64
		remoteOK  bool
		remoteErr error
		attempted bool
	)
	if online && ok {
		attempted = true
		if localErr == nil {
			var res models.SyncResult
			res, remoteErr = s.ctrl.SyncToServer(ctx, s.id, cred, s.save)
			remoteOK, version = res.Synced, res.Version
		} else {
			rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
			version, remoteErr = s.save(rctx, s.id, p)
			cancel()
			remoteOK = remoteErr == nil
		}
		if remoteErr != nil {
			log.Warn(ctx, "remote save failed", "error", remoteErr)
		} else if !remoteOK {
			// the backup vanished before it could be synced; nothing was sent
			attempted = false
		}
	}

	s.mu.Lock()
	st := &s.status
	st.LastError = nil
	switch {
	case remoteOK:
		st.SavedLocallyOnly = false
		st.ServerVersion = version
		st.ConsecutiveRemoteFailures = 0
		st.LastSavedAt = s.now()
	case localErr == nil:
		st.SavedLocallyOnly = true
		st.LastSavedAt = s.now()
	}
	if attempted && !remoteOK {
		st.ConsecutiveRemoteFailures++
	}

	var err error
	if localErr != nil && !remoteOK {
		err = errors.Join(localErr, remoteErr)
		st.State = Error
		st.LastError = err
	} else {
		st.State = Idle
	}
	if s.pending != nil {
		st.State = PendingWrite
	}
	st.Notice = s.noticeLocked(localErr)
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	log.Debug(ctx, "save finished", "local_ok", localErr == nil, "remote_ok", remoteOK)
	return err
}

func (s *Scheduler) noticeLocked(localErr error) Notice {
	st := s.status
	switch {
	case errors.Is(localErr, common.ErrStorageUnavailable):
		return NoticeNoSafetyNet
	case st.ConsecutiveRemoteFailures >= s.threshold:
		return NoticeSyncDelayed
	case st.SavedLocallyOnly:
		return NoticeSavedLocally
	}
	return NoticeNone
}

// SetOnline updates connectivity. The offline to online transition of a
// running scheduler triggers exactly one sync of the local backup.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	if s.status.Online == online {
		s.mu.Unlock()
		return
	}
	s.status.Online = online
	startSync := online && s.status.Running && !s.syncing
	if startSync {
		s.syncing = true
	}
	ctx := s.runCtx
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()

	if startSync {
		go s.reconnectSync(ctx)
	}
}

func (s *Scheduler) reconnectSync(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	running := s.status.Running
	s.mu.Unlock()
	if !running {
		return
	}

	cred, ok := s.creds.SessionCredential(ctx)
	if !ok {
		return
	}

	res, err := s.ctrl.SyncToServer(ctx, s.id, cred, s.save)

	s.mu.Lock()
	st := &s.status
	switch {
	case err != nil:
		st.ConsecutiveRemoteFailures++
		s.log.Warn(ctx, "reconnect sync failed", "error", err)
	case res.Synced:
		st.SavedLocallyOnly = false
		st.ServerVersion = res.Version
		st.ConsecutiveRemoteFailures = 0
		st.LastSavedAt = s.now()
		if st.State == Error {
			st.State = Idle
			st.LastError = nil
		}
		s.log.Info(ctx, "reconnect sync done", "version", res.Version)
	default:
		s.mu.Unlock()
		return
	}
	st.Notice = s.noticeLocked(nil)
	notify := s.publishLocked()
	s.mu.Unlock()
	notify()
}
