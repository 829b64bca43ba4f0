package launcher

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	muxerrors "github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const _waitExit = 10 * time.Second

// Instantiates a new Launcher through the fx provider.
func fxLauncher(t *testing.T, opts ...Option) (Launcher, *observer.ObservedLogs) {
	var l Launcher
	core, recorded := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	fxtest.New(t,
		fx.Provide(
			func() Launcher {
				return NewLauncher(append([]Option{WithLogger(logger)}, opts...)...)
			},
		),
		fx.Populate(&l),
	).RequireStart().RequireStop()

	return l, recorded
}

func awaitExit(t *testing.T, h Handle) ExitStatus {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(_waitExit):
		t.Fatal("process did not exit in time")
	}
	return h.ExitStatus()
}

func TestSelectStrategy(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		shellPath string
		want      Strategy
	}{
		{
			name:      "linux bash",
			goos:      "linux",
			shellPath: "/bin/bash",
			want:      Strategy{Shell: "/bin/bash"},
		},
		{
			name:      "darwin zsh",
			goos:      "darwin",
			shellPath: "/usr/local/bin/zsh",
			want:      Strategy{Shell: "/usr/local/bin/zsh"},
		},
		{
			name:      "unset shell defaults to bash",
			goos:      "linux",
			shellPath: "",
			want:      Strategy{Shell: "/bin/bash"},
		},
		{
			name:      "unrecognized shell",
			goos:      "linux",
			shellPath: "/usr/bin/fish",
			want:      Strategy{},
		},
		{
			name:      "windows always direct",
			goos:      "windows",
			shellPath: "/bin/bash",
			want:      Strategy{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := SelectStrategy(tt.goos, tt.shellPath)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Shell != "", got.LoginShell())
		})
	}
}

func TestLoginShellCommand(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		argv := []string{"srb", "tc", "--lsp", "a b", `it's`, "$HOME", "*.rb"}
		line, err := loginShellCommand(argv, "")
		require.NoError(t, err)

		tokens, err := shellquote.Split(line)
		require.NoError(t, err)
		assert.Equal(t, argv, tokens)
	})

	t.Run("working directory prefix", func(t *testing.T) {
		line, err := loginShellCommand([]string{"srb", "tc"}, "/work space/repo")
		require.NoError(t, err)
		assert.Equal(t, `cd '/work space/repo' && srb tc`, line)
	})

	t.Run("nul in token fails closed", func(t *testing.T) {
		_, err := loginShellCommand([]string{"srb", "a\x00b"}, "/repo")
		require.Error(t, err)
		assert.True(t, muxerrors.IsEscapeError(err))
	})

	t.Run("nul in dir fails closed", func(t *testing.T) {
		_, err := loginShellCommand([]string{"srb"}, "/re\x00po")
		require.Error(t, err)
		assert.True(t, muxerrors.IsEscapeError(err))
	})
}

func TestLaunchDirectExec(t *testing.T) {
	if _, err := exec.LookPath("echo"); errors.Is(err, exec.ErrNotFound) {
		t.Skip("no echo available")
	}

	l, recorded := fxLauncher(t, WithLookupEnv(func(string) (string, bool) {
		return "/usr/bin/fish", true
	}))

	h, err := l.Launch(context.Background(), []string{"echo", "hi"}, Options{})
	require.NoError(t, err)

	out, err := io.ReadAll(h.Stdout())
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(out))

	status := awaitExit(t, h)
	assert.NoError(t, status.Err)
	assert.Equal(t, 0, status.Code)
	assert.NotZero(t, h.PID())
	assert.False(t, h.TerminationRequested())

	logs := recorded.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, false, logs[0].ContextMap()["loginShell"])
}

func TestLaunchLoginShell(t *testing.T) {
	if _, err := exec.LookPath("bash"); errors.Is(err, exec.ErrNotFound) {
		t.Skip("no bash available")
	}

	l, _ := fxLauncher(t,
		WithGOOS("linux"),
		WithLookupEnv(func(string) (string, bool) { return "/bin/bash", true }),
	)

	t.Run("cd into quoted working directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "work space $dir")
		require.NoError(t, os.Mkdir(dir, 0o755))

		h, err := l.Launch(context.Background(), []string{"pwd"}, Options{Dir: dir})
		require.NoError(t, err)

		out, err := io.ReadAll(h.Stdout())
		require.NoError(t, err)
		assert.Equal(t, dir, strings.TrimSpace(string(out)))

		status := awaitExit(t, h)
		assert.Equal(t, 0, status.Code)
	})

	t.Run("tokens survive quoting", func(t *testing.T) {
		argv := []string{"echo", "a b", "$HOME", `it's`}
		h, err := l.Launch(context.Background(), argv, Options{Dir: t.TempDir()})
		require.NoError(t, err)

		out, err := io.ReadAll(h.Stdout())
		require.NoError(t, err)
		assert.Equal(t, "a b $HOME it's", strings.TrimSpace(string(out)))

		awaitExit(t, h)
	})

	t.Run("nul token refuses launch", func(t *testing.T) {
		_, err := l.Launch(context.Background(), []string{"echo", "a\x00b"}, Options{})
		require.Error(t, err)
		assert.True(t, muxerrors.IsEscapeError(err))
	})
}

func TestLaunchExtraEnv(t *testing.T) {
	if _, err := exec.LookPath("sh"); errors.Is(err, exec.ErrNotFound) {
		t.Skip("no sh available")
	}

	l, _ := fxLauncher(t, WithGOOS("windows"))
	h, err := l.Launch(context.Background(),
		[]string{"sh", "-c", "printf %s \"$MUX_TEST_PORT\""},
		Options{ExtraEnv: []string{"MUX_TEST_PORT=28180"}})
	require.NoError(t, err)

	out, err := io.ReadAll(h.Stdout())
	require.NoError(t, err)
	assert.Equal(t, "28180", string(out))

	awaitExit(t, h)
}

func TestLaunchSpawnFailure(t *testing.T) {
	l, _ := fxLauncher(t, WithGOOS("windows"))

	h, err := l.Launch(context.Background(), []string{"/nonexistent-sorbet-mux/bin"}, Options{})
	require.NoError(t, err)

	status := awaitExit(t, h)
	require.Error(t, status.Err)
	assert.Equal(t, -1, status.Code)
	assert.Zero(t, h.PID())

	// Pipes stay usable after a failed spawn.
	out, err := io.ReadAll(h.Stdout())
	assert.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, h.Stdin().Close())
}

func TestLaunchEmptyArgv(t *testing.T) {
	l, _ := fxLauncher(t)
	_, err := l.Launch(context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestTerminate(t *testing.T) {
	if _, err := exec.LookPath("sleep"); errors.Is(err, exec.ErrNotFound) {
		t.Skip("no sleep available")
	}

	l, _ := fxLauncher(t, WithGOOS("windows"))
	h, err := l.Launch(context.Background(), []string{"sleep", "60"}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), _waitExit)
	defer cancel()
	require.NoError(t, h.Terminate(ctx))
	assert.True(t, h.TerminationRequested())

	status := awaitExit(t, h)
	assert.Equal(t, "terminated", status.Signal)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
