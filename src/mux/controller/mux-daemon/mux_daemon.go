// Package muxdaemon implements the sorbet-mux business logic: it resolves
// editor documents to workspace roots and multiplexes many editors onto at
// most one Sorbet language server per root.
package muxdaemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rubydx/sorbet-mux/src/mux/controller/filewatch"
	"github.com/rubydx/sorbet-mux/src/mux/entity"
	notifier "github.com/rubydx/sorbet-mux/src/mux/gateway/ide-client"
	sorbetclient "github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client"
	"github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"github.com/rubydx/sorbet-mux/src/mux/internal/fs"
	"github.com/rubydx/sorbet-mux/src/mux/internal/launcher"
	"github.com/rubydx/sorbet-mux/src/mux/internal/logfilewriter"
	"github.com/rubydx/sorbet-mux/src/mux/internal/serverinfofile"
	workspaceutils "github.com/rubydx/sorbet-mux/src/mux/internal/workspace-utils"
	"github.com/rubydx/sorbet-mux/src/mux/mapper"
	"github.com/rubydx/sorbet-mux/src/mux/repository/session"
	tally "github.com/uber-go/tally/v4"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// Configuration keys
	_idleTimeoutMinutesKey   = "idleTimeoutMinutes"
	_shutdownGraceSecondsKey = "shutdownGraceSeconds"
	_debugBasePortKey        = "debug.basePort"

	// Numerical constants
	_defaultShutdownGraceSeconds = 15
	_initializeTimeoutMinutes    = 10

	_envDebugPort = "SRB_LSP_DEBUG_PORT"

	// Metric names
	_counterStarted         = "sessions_started"
	_counterStartFailures   = "session_start_failures"
	_counterUnexpectedExit  = "session_unexpected_exit"
	_counterDocumentsRouted = "documents_routed"
	_counterResolutionMiss  = "resolution_misses"
)

const _rubyLanguageID protocol.LanguageIdentifier = "ruby"

// Controller orchestrates the business logic for each request.
type Controller interface {
	// LSP Methods defined per protocol.
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Initialized(ctx context.Context, params *protocol.InitializedParams) (err error)
	Shutdown(ctx context.Context) (err error)
	Exit(ctx context.Context) error

	// Document and workspace related methods.
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error
	DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error

	// Custom methods for use within this service.
	RequestFullShutdown(ctx context.Context) error
	InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error)
	EndSession(ctx context.Context, uuid uuid.UUID) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Shutdowner     fx.Shutdowner
	Lifecycle      fx.Lifecycle
	Sessions       session.Repository
	IdeGateway     notifier.Gateway
	Logger         *zap.SugaredLogger
	Config         config.Provider
	FS             fs.MuxFS
	Launcher       launcher.Launcher
	Dialer         sorbetclient.Dialer
	Watcher        filewatch.Watcher
	WorkspaceUtils workspaceutils.WorkspaceUtils
	ServerInfoFile serverinfofile.ServerInfoFile
	Stats          tally.Scope
}

type controller struct {
	sessions       session.Repository
	shutdowner     fx.Shutdowner
	fullShutdown   bool
	idleTimer      *time.Timer
	idleTimerMu    sync.Mutex
	idleTimeout    time.Duration
	shutdownGrace  time.Duration
	logger         *zap.SugaredLogger
	ideGateway     notifier.Gateway
	launcher       launcher.Launcher
	dialer         sorbetclient.Dialer
	watcher        filewatch.Watcher
	workspaceUtils workspaceutils.WorkspaceUtils
	serverInfoFile serverinfofile.ServerInfoFile
	fs             fs.MuxFS
	stats          tally.Scope

	sorbetConfig  entity.SorbetConfig
	debugBasePort int
	debugMu       sync.Mutex
	debugSeq      int

	editorsMu sync.Mutex
	editors   map[uuid.UUID]*entity.EditorSession
}

// New constructs a new top-level controller for the service.
func New(p Params) (Controller, error) {
	ctx := context.Background()

	var timeoutMinutesRaw int64
	if err := p.Config.Get(_idleTimeoutMinutesKey).Populate(&timeoutMinutesRaw); err != nil || timeoutMinutesRaw == 0 {
		return nil, fmt.Errorf("unable to get idle timeout from config: %w", err)
	}
	var graceSecondsRaw int64
	if err := p.Config.Get(_shutdownGraceSecondsKey).Populate(&graceSecondsRaw); err != nil {
		return nil, fmt.Errorf("unable to get shutdown grace period from config: %w", err)
	}
	if graceSecondsRaw <= 0 {
		graceSecondsRaw = _defaultShutdownGraceSeconds
	}

	sorbetConfig := entity.DefaultSorbetConfig()
	if err := p.Config.Get(entity.SorbetConfigKey).Populate(&sorbetConfig); err != nil {
		return nil, fmt.Errorf("unable to get sorbet launch settings from config: %w", err)
	}

	var debugBasePort int
	if err := p.Config.Get(_debugBasePortKey).Populate(&debugBasePort); err != nil {
		return nil, fmt.Errorf("unable to get debug base port from config: %w", err)
	}

	c := &controller{
		sessions:       p.Sessions,
		shutdowner:     p.Shutdowner,
		logger:         p.Logger,
		ideGateway:     p.IdeGateway,
		fs:             p.FS,
		launcher:       p.Launcher,
		dialer:         p.Dialer,
		watcher:        p.Watcher,
		workspaceUtils: p.WorkspaceUtils,
		serverInfoFile: p.ServerInfoFile,
		stats:          p.Stats,

		idleTimeout:   time.Duration(timeoutMinutesRaw) * time.Minute,
		shutdownGrace: time.Duration(graceSecondsRaw) * time.Second,
		sorbetConfig:  sorbetConfig,
		debugBasePort: debugBasePort,
		editors:       map[uuid.UUID]*entity.EditorSession{},
	}
	c.refreshIdleTimer(ctx)

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return c.stopAllSessions(ctx)
			},
		})
	}

	return c, nil
}

// startSession brings up a Sorbet session for the root. It runs on the
// repository's start goroutine with a context detached from any request.
func (c *controller) startSession(ctx context.Context, root string) (*entity.ServerSession, error) {
	s, err := c.launchSession(ctx, root)
	if err != nil {
		c.logger.Errorw("sorbet session failed to start", "root", root, "error", err)
		c.stats.Counter(_counterStartFailures).Inc(1)
		relay := &sessionRelay{c: c, root: root}
		relay.ShowMessage(ctx, &protocol.ShowMessageParams{
			Message: fmt.Sprintf("Sorbet failed to start for %s: %v", root, err),
			Type:    protocol.MessageTypeError,
		})
		return nil, err
	}

	c.stats.Counter(_counterStarted).Inc(1)
	c.logger.Infow("sorbet session running", "root", root, "uuid", s.UUID, "pid", s.Proc.PID())
	return s, nil
}

func (c *controller) launchSession(ctx context.Context, root string) (*entity.ServerSession, error) {
	if !strings.HasPrefix(root, "file://") {
		return nil, fmt.Errorf("cannot launch sorbet for non-file root %q", root)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	opts := launcher.Options{Dir: uri.URI(strings.TrimSuffix(root, "/")).Filename()}
	debugPort := c.nextDebugPort()
	if debugPort != 0 {
		opts.ExtraEnv = append(opts.ExtraEnv, fmt.Sprintf("%s=%d", _envDebugPort, debugPort))
	}

	handle, err := c.launcher.Launch(ctx, mapper.SorbetConfigToCommand(c.sorbetConfig), opts)
	if err != nil {
		return nil, fmt.Errorf("launching sorbet: %w", err)
	}

	// Sorbet reports progress and errors on stderr; collect it in a session
	// log file the editor can surface. The pump owns the writer and closes it
	// once the process side of the pipe ends.
	logWriter, logPath, err := logfilewriter.SetupSessionLogWriter(logfilewriter.Params{
		FS:             c.fs,
		ServerInfoFile: c.serverInfoFile,
	}, root)
	if err != nil {
		c.logger.Warnw("session log unavailable", "root", root, "error", err)
		logWriter = nil
	}
	go pumpStderr(handle.Stderr(), logWriter)

	client := c.dialer.Dial(ctx, sorbetclient.DialParams{
		Root:   root,
		Stdin:  handle.Stdin(),
		Stdout: handle.Stdout(),
		Relay:  &sessionRelay{c: c, root: root},
	})

	initCtx, cancel := context.WithTimeout(ctx, _initializeTimeoutMinutes*time.Minute)
	defer cancel()
	if _, err := client.Initialize(initCtx); err != nil {
		client.Close()
		handle.Terminate(ctx)
		return nil, fmt.Errorf("initializing sorbet session: %w", err)
	}

	// Sorbet relies on watchman to see edits made outside the editor; when it
	// runs without watchman the daemon watches the tree and forwards changes.
	var stopWatch func() error
	if !c.sorbetConfig.UseWatchman {
		stopWatch, err = c.watcher.Watch(ctx, opts.Dir, c.forwardChanges(client))
		if err != nil {
			c.logger.Warnw("file watching unavailable for session", "root", root, "error", err)
			stopWatch = nil
		}
	}

	s := &entity.ServerSession{
		UUID:              id,
		Root:              root,
		State:             entity.SessionStateRunning,
		Proc:              handle,
		Client:            client,
		DiagnosticLogPath: logPath,
		DebugPort:         debugPort,
		StopWatch:         stopWatch,
	}
	go c.watchExit(s)
	return s, nil
}

// stopSession tears down one session: watcher first, then the protocol
// goodbye, then the process. Safe to run against a session whose process has
// already exited.
func (c *controller) stopSession(ctx context.Context, s *entity.ServerSession) error {
	var errs error
	if s.StopWatch != nil {
		if err := s.StopWatch(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	alreadyExited := false
	select {
	case <-s.Proc.Done():
		alreadyExited = true
	default:
	}

	if !alreadyExited {
		if err := s.Client.Shutdown(ctx); err != nil {
			c.logger.Warnw("sorbet session shutdown request failed", "root", s.Root, "error", err)
		}
	}
	if err := s.Proc.Terminate(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.Client.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}

	c.logger.Infow("sorbet session stopped", "root", s.Root, "uuid", s.UUID)
	return errs
}

// stopAllSessions ends every session within the configured grace period.
func (c *controller) stopAllSessions(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.shutdownGrace)
	defer cancel()
	return c.sessions.StopAll(ctx, c.stopSession)
}

// watchExit reports a session process that ends without a stop having been
// requested. The registry entry is left in place; the editor decides whether
// to end its session and start over.
func (c *controller) watchExit(s *entity.ServerSession) {
	<-s.Proc.Done()
	if s.Proc.TerminationRequested() {
		return
	}

	status := s.Proc.ExitStatus()
	c.logger.Warnw("sorbet session ended unexpectedly", "root", s.Root, "status", status.String())
	c.stats.Counter(_counterUnexpectedExit).Inc(1)

	if s.StopWatch != nil {
		if err := s.StopWatch(); err != nil {
			c.logger.Warnw("failed to stop file watching for the exited session", "root", s.Root, "error", err)
		}
	}
	if err := s.Client.Close(); err != nil {
		c.logger.Warnw("failed to close the client for the exited session", "root", s.Root, "error", err)
	}

	relay := &sessionRelay{c: c, root: s.Root}
	relay.LogMessage(context.Background(), &protocol.LogMessageParams{
		Message: fmt.Sprintf("Sorbet session for %s ended unexpectedly (%s). See %s for details.", s.Root, status, s.DiagnosticLogPath),
		Type:    protocol.MessageTypeError,
	})
}

// forwardChanges adapts a session client into the watcher's callback.
func (c *controller) forwardChanges(client sorbetclient.Client) filewatch.ChangeFunc {
	return func(ctx context.Context, changes []*protocol.FileEvent) {
		if len(changes) == 0 {
			return
		}
		if err := client.DidChangeWatchedFiles(ctx, &protocol.DidChangeWatchedFilesParams{Changes: changes}); err != nil {
			c.logger.Warnw("failed to forward file changes to sorbet", "error", err)
		}
	}
}

// pumpStderr drains the process's stderr into the session log. A nil writer
// still drains the pipe so the child never blocks on a full buffer.
func pumpStderr(stderr io.ReadCloser, logWriter io.WriteCloser) {
	if logWriter == nil {
		io.Copy(io.Discard, stderr)
		return
	}
	io.Copy(logWriter, stderr)
	logWriter.Close()
}

// nextDebugPort hands out sequential ports above the configured base, or 0
// when the convention is disabled. A port is never reused within a daemon
// run, even after the session holding it stops.
func (c *controller) nextDebugPort() int {
	if c.debugBasePort == 0 {
		return 0
	}
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	port := c.debugBasePort + c.debugSeq
	c.debugSeq++
	return port
}

// editorSession resolves the editor session for the UUID on the context.
func (c *controller) editorSession(ctx context.Context) (*entity.EditorSession, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, err
	}

	c.editorsMu.Lock()
	defer c.editorsMu.Unlock()
	s, ok := c.editors[id]
	if !ok {
		return nil, &errors.UUIDNotFoundError{UUID: id}
	}
	return s, nil
}

// editorFolders returns a snapshot of the editor's workspace folders.
func (c *controller) editorFolders(ctx context.Context) ([]string, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, err
	}

	c.editorsMu.Lock()
	defer c.editorsMu.Unlock()
	s, ok := c.editors[id]
	if !ok {
		return nil, &errors.UUIDNotFoundError{UUID: id}
	}
	folders := make([]string, len(s.Folders))
	copy(folders, s.Folders)
	return folders, nil
}

// editorsForRoot lists the editors holding a folder inside the root.
func (c *controller) editorsForRoot(root string) []uuid.UUID {
	c.editorsMu.Lock()
	defer c.editorsMu.Unlock()

	ids := make([]uuid.UUID, 0, len(c.editors))
	for id, s := range c.editors {
		for _, folder := range s.Folders {
			if strings.HasPrefix(folder, root) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func (c *controller) editorCount() int {
	c.editorsMu.Lock()
	defer c.editorsMu.Unlock()
	return len(c.editors)
}

// releaseFolders withdraws folder registrations and stops sessions whose
// roots no longer belong to any editor.
func (c *controller) releaseFolders(ctx context.Context, folders []string) error {
	if len(folders) == 0 {
		return nil
	}

	wsFolders := make([]protocol.WorkspaceFolder, 0, len(folders))
	for _, folder := range folders {
		wsFolders = append(wsFolders, protocol.WorkspaceFolder{URI: folder})
	}
	c.workspaceUtils.RemoveRoots(ctx, wsFolders)

	var errs error
	for _, root := range c.sessions.ActiveRoots(ctx) {
		if c.workspaceUtils.Contains(ctx, root) {
			continue
		}
		c.logger.Infow("stopping orphaned sorbet session", "root", root)
		if err := c.sessions.Stop(ctx, root, c.stopSession); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// refreshIdleTimer ensures that the service shuts down after a defined inactivity period with no connections.
func (c *controller) refreshIdleTimer(ctx context.Context) error {
	c.idleTimerMu.Lock()
	defer c.idleTimerMu.Unlock()

	// First call initializes new timer and leaves it running prior to first connection.
	if c.idleTimer == nil {
		c.idleTimer = time.NewTimer(c.idleTimeout)
		go func() {
			<-c.idleTimer.C
			c.logger.Info("Idle shutdown signal received.")
			if err := c.shutdowner.Shutdown(); err != nil {
				os.Exit(1)
			}
		}()
		return nil
	}

	// Subsequent calls stop the timer and reset it only if no connections are active.
	c.idleTimer.Stop()
	if c.editorCount() == 0 {
		c.idleTimer.Reset(c.idleTimeout)
	}
	return nil
}
