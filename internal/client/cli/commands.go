package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/draftkeeper/internal/client/autosave"
	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/google/uuid"
)

var (
	errNotLoggedIn = errors.New("not logged in, use 'login' first")
	errNoDraft     = errors.New("no open draft, use 'new' or 'open'")
)

type draftFields struct {
	Text string `json:"text"`
}

// Login prompts for the session token and installs it.
func (a *App) Login(ctx context.Context) error {
	tok, err := GetToken(a.reader, a.out)
	if err != nil {
		return err
	}
	if err := a.sessions.Login(ctx, tok); err != nil {
		return err
	}
	if !a.isLoggedIn() {
		return errors.New("token is expired")
	}
	printlnFn("Logged in")
	return nil
}

// New starts an empty draft with a fresh identity.
func (a *App) New(ctx context.Context) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}
	id := uuid.NewString()
	a.open(ctx, id, "", 0)
	printlnFn("Created draft", id)
	return nil
}

// Open loads draft id whose server copy was last saved at serverSavedAtMs
// (epoch milliseconds). A newer local backup is offered for restore.
func (a *App) Open(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		return errNotLoggedIn
	}
	if len(args) < 2 {
		return errors.New("usage: open <id> <serverSavedAtMs> [version]")
	}
	id := args[0]
	serverMs, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad server timestamp: %w", err)
	}
	var version int64
	if len(args) > 2 {
		if version, err = strconv.ParseInt(args[2], 10, 64); err != nil {
			return fmt.Errorf("bad version: %w", err)
		}
	}

	cred, _ := a.creds.SessionCredential(ctx)
	dec, err := a.backups.Restore(ctx, id, serverMs, cred)
	if err != nil {
		// the local copy is only a safety net; editing goes on without it
		a.log.Warn(ctx, "restore check failed", "draft", id, "error", err)
		printlnFn("Warning: local backup unavailable:", err)
		dec = models.NoBackup
	}

	text := ""
	if dec.Restorable {
		ok, err := Confirm(a.reader,
			fmt.Sprintf("Unsaved local changes from %s are newer than the server copy. Restore them?",
				dec.CreatedAt.Local().Format(time.DateTime)), a.out)
		if err != nil {
			return err
		}
		if ok {
			var f draftFields
			if err := json.Unmarshal(dec.Payload.Fields, &f); err != nil {
				return fmt.Errorf("restored draft is unreadable: %w", err)
			}
			text, version = f.Text, dec.Payload.Version
		} else if err := a.backups.Discard(ctx, id); err != nil {
			a.log.Warn(ctx, "failed to discard declined backup", "draft", id, "error", err)
		}
	}

	a.open(ctx, id, text, version)
	printlnFn("Opened draft", id)
	if text != "" {
		printlnFn(text)
	}
	return nil
}

// open makes id the current draft and starts its autosave. The previous
// draft is flushed and released.
func (a *App) open(ctx context.Context, id, text string, version int64) {
	a.release(ctx)

	c := a.config
	s := autosave.NewScheduler(id, a.backups, a.creds, a.save,
		autosave.WithDelay(c.DebounceDelay),
		autosave.WithRemoteTimeout(c.RemoteSaveTimeout),
		autosave.WithFailureNoticeThreshold(c.FailureNoticeThreshold),
		autosave.WithLogger(a.log))
	a.registry.Track(s)
	unsub := s.Subscribe(noticePrinter(id))
	s.Start()

	a.current = &openDraft{id: id, text: text, version: version, scheduler: s, unsub: unsub}
}

func (a *App) release(ctx context.Context) {
	if a.current == nil {
		return
	}
	if err := a.current.scheduler.ForceSave(ctx, nil); err != nil && !errors.Is(err, autosave.ErrNotRunning) {
		printlnFn("warning: last changes were not saved:", err)
	}
	a.current.unsub()
	a.registry.Untrack(a.current.id)
	a.current = nil
}

// noticePrinter reports notice changes of one draft to the user.
func noticePrinter(id string) func(autosave.Status) {
	var mu sync.Mutex
	last := autosave.NoticeNone
	return func(st autosave.Status) {
		mu.Lock()
		defer mu.Unlock()
		if st.Notice == last {
			return
		}
		last = st.Notice
		switch st.Notice {
		case autosave.NoticeSavedLocally:
			printlnFn("[" + id + "] saved on this device, will sync when the server is reachable")
		case autosave.NoticeSyncDelayed:
			printlnFn("[" + id + "] server saves keep failing; changes are safe on this device")
		case autosave.NoticeNoSafetyNet:
			printlnFn("[" + id + "] local backup unavailable; changes are only saved while online")
		}
	}
}

// Edit replaces the text of the current draft and schedules an autosave.
func (a *App) Edit(ctx context.Context, text string) error {
	if a.current == nil {
		return errNoDraft
	}
	p, err := models.NewDraftPayload(draftFields{Text: text}, a.current.version)
	if err != nil {
		return err
	}
	a.current.text = text
	return a.current.scheduler.Edit(p)
}

// Save flushes the pending edit immediately.
func (a *App) Save(ctx context.Context) error {
	if a.current == nil {
		return errNoDraft
	}
	if err := a.current.scheduler.ForceSave(ctx, nil); err != nil {
		return err
	}
	printlnFn("Saved:", describe(a.current.scheduler.Status()))
	return nil
}

// Sync pushes the local backup of the current draft to the server now.
func (a *App) Sync(ctx context.Context) error {
	if a.current == nil {
		return errNoDraft
	}
	cred, ok := a.creds.SessionCredential(ctx)
	if !ok {
		return errNotLoggedIn
	}
	res, err := a.backups.SyncToServer(ctx, a.current.id, cred, a.save)
	if err != nil {
		return err
	}
	if res.Synced {
		printlnFn("Local backup synced to the server, version", res.Version)
	} else {
		printlnFn("Nothing to sync")
	}
	return nil
}

// Status prints the autosave state of every open draft.
func (a *App) Status(ctx context.Context) error {
	ids := a.registry.IDs()
	if len(ids) == 0 {
		printlnFn("No open drafts")
		return nil
	}
	for _, id := range ids {
		s, ok := a.registry.Get(id)
		if !ok {
			continue
		}
		marker := " "
		if a.current != nil && a.current.id == id {
			marker = "*"
		}
		printlnFn(fmt.Sprintf("%s %s %s", marker, id, describe(s.Status())))
	}
	return nil
}

func describe(st autosave.Status) string {
	out := st.State.String()
	if st.Online {
		out += ", online"
	} else {
		out += ", offline"
	}
	if st.ServerVersion > 0 {
		out += fmt.Sprintf(", server v%d", st.ServerVersion)
	}
	if st.SavedLocallyOnly {
		out += ", local only"
	}
	if st.Notice != autosave.NoticeNone {
		out += ", " + string(st.Notice)
	}
	if st.LastError != nil {
		out += ", last error: " + st.LastError.Error()
	}
	return out
}

// SetConnectivity pins connectivity to online or offline, or returns it to
// probing with auto.
func (a *App) SetConnectivity(ctx context.Context, mode string) error {
	if a.watcher == nil {
		switch mode {
		case "online":
			a.registry.SetOnline(true)
		case "offline", "auto":
			a.registry.SetOnline(false)
		default:
			return fmt.Errorf("unknown connectivity mode %q", mode)
		}
		printlnFn("Connectivity:", mode)
		return nil
	}

	switch mode {
	case "online":
		a.watcher.SetOverride(autosave.ForceOnline)
	case "offline":
		a.watcher.SetOverride(autosave.ForceOffline)
	case "auto":
		a.watcher.SetOverride(autosave.Auto)
	default:
		return fmt.Errorf("unknown connectivity mode %q", mode)
	}
	printlnFn("Connectivity:", mode)
	return nil
}

// CloseDraft flushes and releases the current draft.
func (a *App) CloseDraft(ctx context.Context) error {
	if a.current == nil {
		return errNoDraft
	}
	id := a.current.id
	a.release(ctx)
	printlnFn("Closed draft", id)
	return nil
}

// Logout wipes every local backup and forgets the session.
func (a *App) Logout(ctx context.Context) error {
	if a.current != nil {
		a.current.unsub()
		a.current = nil
	}
	report, err := a.sessions.Logout(ctx)
	for _, id := range a.registry.IDs() {
		a.registry.Untrack(id)
	}
	printlnFn(fmt.Sprintf("Logged out, removed %d local backup(s)", report.Deleted))
	if err != nil {
		return fmt.Errorf("%d backup(s) could not be removed: %w", report.Failed, err)
	}
	return nil
}
