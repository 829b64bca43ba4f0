package muxdaemon

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rubydx/sorbet-mux/src/mux/controller/filewatch/filewatchmock"
	"github.com/rubydx/sorbet-mux/src/mux/entity"
	"github.com/rubydx/sorbet-mux/src/mux/factory"
	"github.com/rubydx/sorbet-mux/src/mux/gateway/ide-client/ideclientmock"
	sorbetclient "github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client"
	"github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client/sorbetclientmock"
	"github.com/rubydx/sorbet-mux/src/mux/internal/fs/fsmock"
	"github.com/rubydx/sorbet-mux/src/mux/internal/fxmock"
	"github.com/rubydx/sorbet-mux/src/mux/internal/launcher"
	"github.com/rubydx/sorbet-mux/src/mux/internal/launcher/launchermock"
	"github.com/rubydx/sorbet-mux/src/mux/internal/serverinfofile/serverinfofilemock"
	"github.com/rubydx/sorbet-mux/src/mux/internal/workspace-utils/workspaceutilsmock"
	"github.com/rubydx/sorbet-mux/src/mux/repository/session"
	"github.com/rubydx/sorbet-mux/src/mux/repository/session/repositorymock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally/v4"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type sampleConfig map[string]interface{}

const _rootSample = "file:///home/user/repo/"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockShutdowner := fxmock.NewMockShutdowner(ctrl)

	ctx := context.WithValue(context.Background(), entity.SessionContextKey, factory.UUID())

	mockParams := Params{
		Shutdowner: mockShutdowner,
		Logger:     zap.NewNop().Sugar(),
		Sessions:   repositorymock.NewMockRepository(ctrl),
		Stats:      tally.NewTestScope("testing", make(map[string]string)),
	}

	t.Run("config includes timeout", func(t *testing.T) {
		mockConfig, _ := config.NewStaticProvider(sampleConfig{
			_idleTimeoutMinutesKey: 5,
		})
		mockParams.Config = mockConfig

		assert.NotPanics(t, func() {
			mockShutdowner.EXPECT().Shutdown().Return(nil)
			c, _ := New(mockParams)
			c.RequestFullShutdown(ctx)
			c.Exit(ctx)

			// Small delay to allow shutdown goroutine to complete.
			time.Sleep(100 * time.Millisecond)
		})
	})

	t.Run("config missing timeout", func(t *testing.T) {
		mockConfig, _ := config.NewStaticProvider(sampleConfig{})
		mockParams.Config = mockConfig

		_, err := New(mockParams)
		assert.Error(t, err)
	})

	t.Run("sorbet settings layered over defaults", func(t *testing.T) {
		mockConfig, _ := config.NewStaticProvider(sampleConfig{
			_idleTimeoutMinutesKey: 5,
			"sorbet": map[string]interface{}{
				"useBundler":  true,
				"useWatchman": false,
			},
			"debug": map[string]interface{}{
				"basePort": 7000,
			},
		})
		mockParams.Config = mockConfig

		mockShutdowner.EXPECT().Shutdown().Return(nil)
		c, err := New(mockParams)
		require.NoError(t, err)

		impl := c.(*controller)
		assert.Equal(t, "srb", impl.sorbetConfig.CommandPath)
		assert.Equal(t, "bundle", impl.sorbetConfig.BundlerPath)
		assert.True(t, impl.sorbetConfig.UseBundler)
		assert.False(t, impl.sorbetConfig.UseWatchman)
		assert.Equal(t, 7000, impl.debugBasePort)
		assert.Equal(t, _defaultShutdownGraceSeconds*time.Second, impl.shutdownGrace)

		c.RequestFullShutdown(ctx)
		c.Exit(ctx)
		time.Sleep(100 * time.Millisecond)
	})
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("launches sorbet and starts serving", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		testScope := tally.NewTestScope("testing", make(map[string]string))

		handleDone := make(chan struct{})
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Stderr().Return(io.NopCloser(strings.NewReader("sorbet: booting\n")))
		mockHandle.EXPECT().Stdin().Return(nil)
		mockHandle.EXPECT().Stdout().Return(nil)
		mockHandle.EXPECT().PID().Return(4242)
		mockHandle.EXPECT().Done().Return(handleDone).AnyTimes()

		var gotArgv []string
		var gotOpts launcher.Options
		mockLauncher := launchermock.NewMockLauncher(ctrl)
		mockLauncher.EXPECT().Launch(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, argv []string, opts launcher.Options) (launcher.Handle, error) {
				gotArgv = argv
				gotOpts = opts
				return mockHandle, nil
			})

		mockFS := fsmock.NewMockMuxFS(ctrl)
		mockFS.EXPECT().TempDir().Return(t.TempDir())
		mockFS.EXPECT().MkdirAll(gomock.Any()).DoAndReturn(func(path string) error {
			return os.MkdirAll(path, os.ModePerm)
		})
		mockFS.EXPECT().TempFile(gomock.Any(), gomock.Any()).DoAndReturn(os.CreateTemp)

		logClosed := make(chan struct{})
		mockInfoFile := serverinfofilemock.NewMockServerInfoFile(ctrl)
		mockInfoFile.EXPECT().UpdateField(gomock.Any(), gomock.Any()).Return(nil)
		mockInfoFile.EXPECT().DeleteField(gomock.Any()).DoAndReturn(func(string) error {
			close(logClosed)
			return nil
		})

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Initialize(gomock.Any()).Return(&protocol.InitializeResult{}, nil)
		mockDialer := sorbetclientmock.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, params sorbetclient.DialParams) sorbetclient.Client {
				assert.Equal(t, _rootSample, params.Root)
				assert.NotNil(t, params.Relay)
				return mockClient
			})

		mockWatcher := filewatchmock.NewMockWatcher(ctrl)
		mockWatcher.EXPECT().Watch(gomock.Any(), "/home/user/repo", gomock.Any()).Return(func() error { return nil }, nil)

		c := &controller{
			logger:         zap.NewNop().Sugar(),
			launcher:       mockLauncher,
			dialer:         mockDialer,
			watcher:        mockWatcher,
			fs:             mockFS,
			serverInfoFile: mockInfoFile,
			stats:          testScope,
			sorbetConfig: entity.SorbetConfig{
				CommandPath: "srb",
				BundlerPath: "bundle",
				UseWatchman: false,
			},
			debugBasePort: 7000,
			editors:       map[uuid.UUID]*entity.EditorSession{},
		}

		s, err := c.startSession(ctx, _rootSample)
		require.NoError(t, err)
		assert.Equal(t, _rootSample, s.Root)
		assert.Equal(t, entity.SessionStateRunning, s.State)
		assert.Equal(t, 7000, s.DebugPort)
		assert.NotEmpty(t, s.DiagnosticLogPath)
		assert.NotNil(t, s.StopWatch)

		assert.Equal(t, []string{"srb", "tc", "--lsp", "--enable-all-experimental-lsp-features", "--disable-watchman"}, gotArgv)
		assert.Equal(t, "/home/user/repo", gotOpts.Dir)
		assert.Contains(t, gotOpts.ExtraEnv, "SRB_LSP_DEBUG_PORT=7000")

		counters := testScope.Snapshot().Counters()
		require.Contains(t, counters, "testing.sessions_started+")
		assert.Equal(t, int64(1), counters["testing.sessions_started+"].Value())

		// The stderr pump owns the log writer and closes it at pipe EOF.
		select {
		case <-logClosed:
		case <-time.After(5 * time.Second):
			t.Fatal("session log writer never closed")
		}
		content, err := os.ReadFile(s.DiagnosticLogPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "sorbet: booting")

		// Release the exit watcher as a requested termination.
		mockHandle.EXPECT().TerminationRequested().Return(true)
		close(handleDone)
		time.Sleep(100 * time.Millisecond)
	})

	t.Run("launch failure notifies editors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		testScope := tally.NewTestScope("testing", make(map[string]string))

		mockLauncher := launchermock.NewMockLauncher(ctrl)
		mockLauncher.EXPECT().Launch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("spawn failed"))

		editorID := factory.UUID()
		mockGateway := ideclientmock.NewMockGateway(ctrl)
		mockGateway.EXPECT().ShowMessage(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, params *protocol.ShowMessageParams) error {
				assert.Equal(t, editorID, ctx.Value(entity.SessionContextKey))
				assert.Equal(t, protocol.MessageTypeError, params.Type)
				assert.Contains(t, params.Message, "failed to start")
				return nil
			})

		c := &controller{
			logger:       zap.NewNop().Sugar(),
			launcher:     mockLauncher,
			ideGateway:   mockGateway,
			stats:        testScope,
			sorbetConfig: entity.DefaultSorbetConfig(),
			editors: map[uuid.UUID]*entity.EditorSession{
				editorID: {UUID: editorID, Folders: []string{_rootSample}},
			},
		}

		_, err := c.startSession(ctx, _rootSample)
		assert.Error(t, err)

		counters := testScope.Snapshot().Counters()
		require.Contains(t, counters, "testing.session_start_failures+")
		assert.Equal(t, int64(1), counters["testing.session_start_failures+"].Value())
	})
}

func TestLaunchSession(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects a non-file root", func(t *testing.T) {
		c := &controller{logger: zap.NewNop().Sugar()}

		_, err := c.launchSession(ctx, "/home/user/repo/")
		assert.Error(t, err)
	})

	t.Run("initialize failure terminates the process", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Stderr().Return(io.NopCloser(strings.NewReader("")))
		mockHandle.EXPECT().Stdin().Return(nil)
		mockHandle.EXPECT().Stdout().Return(nil)
		mockHandle.EXPECT().Terminate(gomock.Any()).Return(nil)

		mockLauncher := launchermock.NewMockLauncher(ctrl)
		mockLauncher.EXPECT().Launch(gomock.Any(), gomock.Any(), gomock.Any()).Return(mockHandle, nil)

		mockFS := fsmock.NewMockMuxFS(ctrl)
		mockFS.EXPECT().TempDir().Return(t.TempDir())
		mockFS.EXPECT().MkdirAll(gomock.Any()).Return(errors.New("disk full"))

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Initialize(gomock.Any()).Return(nil, errors.New("handshake failed"))
		mockClient.EXPECT().Close().Return(nil)
		mockDialer := sorbetclientmock.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(mockClient)

		c := &controller{
			logger:       zap.NewNop().Sugar(),
			launcher:     mockLauncher,
			dialer:       mockDialer,
			fs:           mockFS,
			sorbetConfig: entity.DefaultSorbetConfig(),
			editors:      map[uuid.UUID]*entity.EditorSession{},
		}

		_, err := c.launchSession(ctx, _rootSample)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initializing sorbet session")
	})

	t.Run("file watching failure is tolerated", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Stderr().Return(io.NopCloser(strings.NewReader("")))
		mockHandle.EXPECT().Stdin().Return(nil)
		mockHandle.EXPECT().Stdout().Return(nil)
		mockHandle.EXPECT().Done().Return(handleDone).AnyTimes()

		mockLauncher := launchermock.NewMockLauncher(ctrl)
		mockLauncher.EXPECT().Launch(gomock.Any(), gomock.Any(), gomock.Any()).Return(mockHandle, nil)

		mockFS := fsmock.NewMockMuxFS(ctrl)
		mockFS.EXPECT().TempDir().Return(t.TempDir())
		mockFS.EXPECT().MkdirAll(gomock.Any()).Return(errors.New("disk full"))

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Initialize(gomock.Any()).Return(&protocol.InitializeResult{}, nil)
		mockDialer := sorbetclientmock.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(mockClient)

		mockWatcher := filewatchmock.NewMockWatcher(ctrl)
		mockWatcher.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("inotify exhausted"))

		cfg := entity.DefaultSorbetConfig()
		cfg.UseWatchman = false
		c := &controller{
			logger:       zap.NewNop().Sugar(),
			launcher:     mockLauncher,
			dialer:       mockDialer,
			watcher:      mockWatcher,
			fs:           mockFS,
			sorbetConfig: cfg,
			editors:      map[uuid.UUID]*entity.EditorSession{},
		}

		s, err := c.launchSession(ctx, _rootSample)
		require.NoError(t, err)
		assert.Nil(t, s.StopWatch)
		assert.Empty(t, s.DiagnosticLogPath)

		mockHandle.EXPECT().TerminationRequested().Return(true)
		close(handleDone)
		time.Sleep(100 * time.Millisecond)
	})

	t.Run("watchman sessions skip the daemon watcher", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Stderr().Return(io.NopCloser(strings.NewReader("")))
		mockHandle.EXPECT().Stdin().Return(nil)
		mockHandle.EXPECT().Stdout().Return(nil)
		mockHandle.EXPECT().Done().Return(handleDone).AnyTimes()

		mockLauncher := launchermock.NewMockLauncher(ctrl)
		mockLauncher.EXPECT().Launch(gomock.Any(), gomock.Any(), gomock.Any()).Return(mockHandle, nil)

		mockFS := fsmock.NewMockMuxFS(ctrl)
		mockFS.EXPECT().TempDir().Return(t.TempDir())
		mockFS.EXPECT().MkdirAll(gomock.Any()).Return(errors.New("disk full"))

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Initialize(gomock.Any()).Return(&protocol.InitializeResult{}, nil)
		mockDialer := sorbetclientmock.NewMockDialer(ctrl)
		mockDialer.EXPECT().Dial(gomock.Any(), gomock.Any()).Return(mockClient)

		c := &controller{
			logger:       zap.NewNop().Sugar(),
			launcher:     mockLauncher,
			dialer:       mockDialer,
			watcher:      filewatchmock.NewMockWatcher(ctrl),
			fs:           mockFS,
			sorbetConfig: entity.DefaultSorbetConfig(),
			editors:      map[uuid.UUID]*entity.EditorSession{},
		}

		s, err := c.launchSession(ctx, _rootSample)
		require.NoError(t, err)
		assert.Nil(t, s.StopWatch)

		mockHandle.EXPECT().TerminationRequested().Return(true)
		close(handleDone)
		time.Sleep(100 * time.Millisecond)
	})
}

func TestStopSession(t *testing.T) {
	ctx := context.Background()

	t.Run("full teardown", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().Terminate(gomock.Any()).Return(nil)

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Shutdown(gomock.Any()).Return(nil)
		mockClient.EXPECT().Close().Return(nil)

		stopWatchCalled := false
		s := &entity.ServerSession{
			UUID:   factory.UUID(),
			Root:   _rootSample,
			State:  entity.SessionStateRunning,
			Proc:   mockHandle,
			Client: mockClient,
			StopWatch: func() error {
				stopWatchCalled = true
				return nil
			},
		}

		c := &controller{logger: zap.NewNop().Sugar()}
		err := c.stopSession(ctx, s)
		assert.NoError(t, err)
		assert.True(t, stopWatchCalled)
	})

	t.Run("already exited process skips the protocol goodbye", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		close(handleDone)
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().Terminate(gomock.Any()).Return(nil)

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Close().Return(nil)

		s := &entity.ServerSession{
			UUID:   factory.UUID(),
			Root:   _rootSample,
			State:  entity.SessionStateRunning,
			Proc:   mockHandle,
			Client: mockClient,
		}

		c := &controller{logger: zap.NewNop().Sugar()}
		assert.NoError(t, c.stopSession(ctx, s))
	})

	t.Run("collects watcher and terminate failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().Terminate(gomock.Any()).Return(errors.New("kill failed"))

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Shutdown(gomock.Any()).Return(errors.New("no reply"))
		mockClient.EXPECT().Close().Return(nil)

		s := &entity.ServerSession{
			UUID:   factory.UUID(),
			Root:   _rootSample,
			State:  entity.SessionStateRunning,
			Proc:   mockHandle,
			Client: mockClient,
			StopWatch: func() error {
				return errors.New("watch closed")
			},
		}

		c := &controller{logger: zap.NewNop().Sugar()}
		err := c.stopSession(ctx, s)
		require.Error(t, err)

		// The shutdown refusal is only logged; watcher and terminate failures combine.
		assert.Len(t, multierr.Errors(err), 2)
	})

	t.Run("client close failure is collected", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().Terminate(gomock.Any()).Return(nil)

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Shutdown(gomock.Any()).Return(nil)
		mockClient.EXPECT().Close().Return(errors.New("stream already closed"))

		s := &entity.ServerSession{
			UUID:   factory.UUID(),
			Root:   _rootSample,
			State:  entity.SessionStateRunning,
			Proc:   mockHandle,
			Client: mockClient,
		}

		c := &controller{logger: zap.NewNop().Sugar()}
		err := c.stopSession(ctx, s)
		require.Error(t, err)
		assert.Len(t, multierr.Errors(err), 1)
	})
}

func TestStopAllSessions(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockSessions := repositorymock.NewMockRepository(ctrl)
	mockSessions.EXPECT().StopAll(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, stop session.StopFunc) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok, "teardown should be bounded by the grace period")
			return nil
		})

	c := &controller{
		logger:        zap.NewNop().Sugar(),
		sessions:      mockSessions,
		shutdownGrace: time.Second,
	}
	assert.NoError(t, c.stopAllSessions(context.Background()))
}

func TestWatchExit(t *testing.T) {
	t.Run("requested termination stays quiet", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		handleDone := make(chan struct{})
		close(handleDone)
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().TerminationRequested().Return(true)

		c := &controller{logger: zap.NewNop().Sugar()}
		c.watchExit(&entity.ServerSession{Proc: mockHandle})
	})

	t.Run("unexpected exit notifies editors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		testScope := tally.NewTestScope("testing", make(map[string]string))

		handleDone := make(chan struct{})
		close(handleDone)
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().TerminationRequested().Return(false)
		mockHandle.EXPECT().ExitStatus().Return(launcher.ExitStatus{Code: 137, Signal: "SIGKILL"})

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Close().Return(nil)

		editorID := factory.UUID()
		mockGateway := ideclientmock.NewMockGateway(ctrl)
		mockGateway.EXPECT().LogMessage(gomock.Any(), gomock.Any()).DoAndReturn(
			func(ctx context.Context, params *protocol.LogMessageParams) error {
				assert.Equal(t, editorID, ctx.Value(entity.SessionContextKey))
				assert.Equal(t, protocol.MessageTypeError, params.Type)
				assert.Contains(t, params.Message, "ended unexpectedly")
				return nil
			})

		stopWatchCalled := false
		s := &entity.ServerSession{
			UUID:   factory.UUID(),
			Root:   _rootSample,
			State:  entity.SessionStateRunning,
			Proc:   mockHandle,
			Client: mockClient,
			StopWatch: func() error {
				stopWatchCalled = true
				return nil
			},
		}

		c := &controller{
			logger:     zap.NewNop().Sugar(),
			ideGateway: mockGateway,
			stats:      testScope,
			editors: map[uuid.UUID]*entity.EditorSession{
				editorID: {UUID: editorID, Folders: []string{_rootSample + "lib/"}},
			},
		}
		c.watchExit(s)

		assert.True(t, stopWatchCalled)
		counters := testScope.Snapshot().Counters()
		require.Contains(t, counters, "testing.session_unexpected_exit+")
		assert.Equal(t, int64(1), counters["testing.session_unexpected_exit+"].Value())
	})

	t.Run("teardown failures after exit are logged", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		core, recorded := observer.New(zap.WarnLevel)

		handleDone := make(chan struct{})
		close(handleDone)
		mockHandle := launchermock.NewMockHandle(ctrl)
		mockHandle.EXPECT().Done().Return(handleDone)
		mockHandle.EXPECT().TerminationRequested().Return(false)
		mockHandle.EXPECT().ExitStatus().Return(launcher.ExitStatus{Code: 1})

		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().Close().Return(errors.New("stream already closed"))

		s := &entity.ServerSession{
			UUID:   factory.UUID(),
			Root:   _rootSample,
			State:  entity.SessionStateRunning,
			Proc:   mockHandle,
			Client: mockClient,
			StopWatch: func() error {
				return errors.New("watch already closed")
			},
		}

		c := &controller{
			logger:  zap.New(core).Sugar(),
			stats:   tally.NoopScope,
			editors: map[uuid.UUID]*entity.EditorSession{},
		}
		c.watchExit(s)

		assert.Equal(t, 1, recorded.FilterMessageSnippet("failed to stop file watching").Len())
		assert.Equal(t, 1, recorded.FilterMessageSnippet("failed to close the client").Len())
	})
}

func TestForwardChanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	ctx := context.Background()
	c := &controller{logger: zap.NewNop().Sugar()}

	changes := []*protocol.FileEvent{
		{URI: "file:///home/user/repo/app.rb", Type: protocol.FileChangeTypeChanged},
	}

	t.Run("forwards batched changes", func(t *testing.T) {
		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().DidChangeWatchedFiles(gomock.Any(), &protocol.DidChangeWatchedFilesParams{Changes: changes}).Return(nil)

		c.forwardChanges(mockClient)(ctx, changes)
	})

	t.Run("skips empty batches", func(t *testing.T) {
		mockClient := sorbetclientmock.NewMockClient(ctrl)
		c.forwardChanges(mockClient)(ctx, nil)
	})

	t.Run("forwarding failure is logged", func(t *testing.T) {
		mockClient := sorbetclientmock.NewMockClient(ctrl)
		mockClient.EXPECT().DidChangeWatchedFiles(gomock.Any(), gomock.Any()).Return(errors.New("conn reset"))

		c.forwardChanges(mockClient)(ctx, changes)
	})
}

type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func TestPumpStderr(t *testing.T) {
	t.Run("drains without a writer", func(t *testing.T) {
		pumpStderr(io.NopCloser(strings.NewReader("noise")), nil)
	})

	t.Run("copies into the writer and closes it", func(t *testing.T) {
		buf := &closeBuffer{}
		pumpStderr(io.NopCloser(strings.NewReader("sorbet output")), buf)
		assert.Equal(t, "sorbet output", buf.String())
		assert.True(t, buf.closed)
	})
}

func TestNextDebugPort(t *testing.T) {
	t.Run("disabled without a base port", func(t *testing.T) {
		c := &controller{}
		assert.Equal(t, 0, c.nextDebugPort())
		assert.Equal(t, 0, c.nextDebugPort())
	})

	t.Run("sequential ports above the base", func(t *testing.T) {
		c := &controller{debugBasePort: 7000}
		assert.Equal(t, 7000, c.nextDebugPort())
		assert.Equal(t, 7001, c.nextDebugPort())
		assert.Equal(t, 7002, c.nextDebugPort())
	})
}

func TestReleaseFolders(t *testing.T) {
	ctx := context.Background()

	t.Run("empty set is a no-op", func(t *testing.T) {
		c := &controller{}
		assert.NoError(t, c.releaseFolders(ctx, nil))
	})

	t.Run("stops sessions with no remaining owner", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		rootKept := "file:///home/user/other/"

		mockWorkspaceUtils := workspaceutilsmock.NewMockWorkspaceUtils(ctrl)
		mockWorkspaceUtils.EXPECT().RemoveRoots(gomock.Any(), []protocol.WorkspaceFolder{{URI: _rootSample}})
		mockWorkspaceUtils.EXPECT().Contains(gomock.Any(), _rootSample).Return(false)
		mockWorkspaceUtils.EXPECT().Contains(gomock.Any(), rootKept).Return(true)

		mockSessions := repositorymock.NewMockRepository(ctrl)
		mockSessions.EXPECT().ActiveRoots(gomock.Any()).Return([]string{_rootSample, rootKept})
		mockSessions.EXPECT().Stop(gomock.Any(), _rootSample, gomock.Any()).Return(nil)

		c := &controller{
			logger:         zap.NewNop().Sugar(),
			sessions:       mockSessions,
			workspaceUtils: mockWorkspaceUtils,
		}
		assert.NoError(t, c.releaseFolders(ctx, []string{_rootSample}))
	})

	t.Run("stop failure is reported", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		mockWorkspaceUtils := workspaceutilsmock.NewMockWorkspaceUtils(ctrl)
		mockWorkspaceUtils.EXPECT().RemoveRoots(gomock.Any(), gomock.Any())
		mockWorkspaceUtils.EXPECT().Contains(gomock.Any(), _rootSample).Return(false)

		mockSessions := repositorymock.NewMockRepository(ctrl)
		mockSessions.EXPECT().ActiveRoots(gomock.Any()).Return([]string{_rootSample})
		mockSessions.EXPECT().Stop(gomock.Any(), _rootSample, gomock.Any()).Return(errors.New("teardown failed"))

		c := &controller{
			logger:         zap.NewNop().Sugar(),
			sessions:       mockSessions,
			workspaceUtils: mockWorkspaceUtils,
		}
		assert.Error(t, c.releaseFolders(ctx, []string{_rootSample}))
	})
}

func TestEditorsForRoot(t *testing.T) {
	inside := factory.UUID()
	outside := factory.UUID()
	emptyFolders := factory.UUID()

	c := &controller{
		editors: map[uuid.UUID]*entity.EditorSession{
			inside:       {UUID: inside, Folders: []string{_rootSample + "lib/"}},
			outside:      {UUID: outside, Folders: []string{"file:///home/user/other/"}},
			emptyFolders: {UUID: emptyFolders},
		},
	}

	assert.Equal(t, []uuid.UUID{inside}, c.editorsForRoot(_rootSample))
	assert.Empty(t, c.editorsForRoot("file:///home/user/gems/"))
}

func TestEditorFolders(t *testing.T) {
	id := factory.UUID()
	c := &controller{
		editors: map[uuid.UUID]*entity.EditorSession{
			id: {UUID: id, Folders: []string{_rootSample}},
		},
	}

	t.Run("snapshots the editor's folders", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)
		folders, err := c.editorFolders(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{_rootSample}, folders)

		folders[0] = "file:///mutated/"
		assert.Equal(t, []string{_rootSample}, c.editors[id].Folders)
	})

	t.Run("unknown session", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, factory.UUID())
		_, err := c.editorFolders(ctx)
		assert.Error(t, err)
	})

	t.Run("missing session uuid in context", func(t *testing.T) {
		_, err := c.editorFolders(context.Background())
		assert.Error(t, err)
	})
}
