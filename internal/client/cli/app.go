package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/dmitrijs2005/draftkeeper/internal/client/autosave"
	"github.com/dmitrijs2005/draftkeeper/internal/client/client"
	"github.com/dmitrijs2005/draftkeeper/internal/client/config"
	"github.com/dmitrijs2005/draftkeeper/internal/client/credentials"
	"github.com/dmitrijs2005/draftkeeper/internal/client/models"
	"github.com/dmitrijs2005/draftkeeper/internal/client/repositories/backups"
	"github.com/dmitrijs2005/draftkeeper/internal/client/repositories/kv"
	"github.com/dmitrijs2005/draftkeeper/internal/client/services"
	"github.com/dmitrijs2005/draftkeeper/internal/cryptox"
	"github.com/dmitrijs2005/draftkeeper/internal/logging"
	"github.com/dmitrijs2005/draftkeeper/internal/metrics"
)

// App is the interactive draft editor. It owns one open draft at a time;
// autosave keeps running for every draft opened during the session.
type App struct {
	config  *config.Config
	log     logging.Logger
	metrics metrics.Reporter

	session  *credentials.Session
	creds    credentials.Provider
	keys     *cryptox.KeyCache
	backups  *services.BackupController
	sessions services.SessionService
	registry *autosave.Registry
	watcher  *autosave.Watcher
	save     models.RemoteSaveFunc

	reader  *bufio.Reader
	out     io.Writer
	current *openDraft

	closers []func() error
}

// openDraft is the document being edited in the REPL.
type openDraft struct {
	id        string
	text      string
	version   int64
	scheduler *autosave.Scheduler
	unsub     func()
}

// deps are the environment-specific collaborators of an App.
type deps struct {
	repo   kv.Repository
	pinger autosave.Pinger
	save   models.RemoteSaveFunc
}

// NewApp wires the application from c: SQLite storage, the key cache, the
// backup controller, autosave and, when configured, the server probe and S3
// saver.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger, mr metrics.Reporter) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DatabasePath, "error", err)
		return nil, err
	}
	d := deps{repo: kv.NewSQLiteRepository(db), save: client.OfflineSaver}
	closers := []func() error{db.Close}

	if c.S3.Bucket != "" {
		saver, err := client.NewS3DraftSaver(ctx, c.S3)
		if err != nil {
			_ = closeAll(closers)
			return nil, err
		}
		d.save = saver.Save
	}

	a := newApp(c, log, mr, d, os.Stdin, os.Stdout)
	a.closers = closers

	if c.ServerEndpointAddr != "" {
		p, err := client.NewGRPCHealthPinger(c.ServerEndpointAddr,
			[]client.PingerOption{client.WithCredentials(a.creds)})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		a.sessions = services.NewSessionService(a.session, a.keys, a.backups, a.registry, p, log)
		a.watcher = autosave.NewWatcher(p, a.registry, c.OnlineCheckInterval,
			autosave.WithWatcherLogger(log))
	}
	return a, nil
}

func newApp(c *config.Config, log logging.Logger, mr metrics.Reporter, d deps, in io.Reader, out io.Writer) *App {
	session := credentials.NewSession(credentials.NewEnvProvider(c.CredentialEnv))
	creds := credentials.NewJWTGuard(session)
	keys := cryptox.NewKeyCache()

	store := backups.NewStore(d.repo,
		backups.WithTTL(c.BackupTTL),
		backups.WithLogger(log),
		backups.WithMetrics(mr))
	ctrl := services.NewBackupController(store, keys,
		services.WithControllerLogger(log),
		services.WithMetrics(mr),
		services.WithRemoteSaveTimeout(c.RemoteSaveTimeout))
	registry := autosave.NewRegistry()

	a := &App{
		config:   c,
		log:      log,
		metrics:  mr,
		session:  session,
		creds:    creds,
		keys:     keys,
		backups:  ctrl,
		registry: registry,
		save:     d.save,
		reader:   bufio.NewReader(in),
		out:      out,
	}
	a.sessions = services.NewSessionService(session, keys, ctrl, registry, d.pinger, log)
	if d.pinger != nil {
		a.watcher = autosave.NewWatcher(d.pinger, registry, c.OnlineCheckInterval,
			autosave.WithWatcherLogger(log))
	}
	return a
}

func (a *App) isLoggedIn() bool {
	_, ok := a.creds.SessionCredential(context.Background())
	return ok
}

// Run starts the connectivity watcher and the REPL, and stops autosave when
// the REPL ends.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.watcher != nil {
		go a.watcher.Run(ctx)
	} else {
		// without a server probe, remote saves are attempted whenever S3 is set
		a.registry.SetOnline(a.config.S3.Bucket != "")
	}

	printlnFn("Welcome to the draft editor (type 'help' for commands)")
	runREPL(ctx, a, a.statusLine, a.reader)

	if a.current != nil {
		if err := a.current.scheduler.ForceSave(ctx, nil); err != nil && !errors.Is(err, autosave.ErrNotRunning) {
			a.log.Warn(ctx, "final save failed", "draft", a.current.id, "error", err)
		}
	}
	a.registry.StopAll()
}

// Close releases storage, the server connection and metrics.
func (a *App) Close() error {
	a.registry.StopAll()
	return closeAll(append(a.closers, a.metrics.Close))
}

func closeAll(fns []func() error) error {
	var errs []error
	for _, fn := range fns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
