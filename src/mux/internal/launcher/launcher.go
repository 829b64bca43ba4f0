// Package launcher starts Sorbet language server processes and hands back
// asynchronous handles to them.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_envShell     = "SHELL"
	_defaultShell = "/bin/bash"
)

// Module provides a Launcher into an fx application.
var Module = fx.Provide(func(logger *zap.SugaredLogger) Launcher {
	return NewLauncher(WithLogger(logger))
})

// Launcher wraps the start of session processes to allow adding logs to each
// launch and makes strategy selection and spawning easier to test.
type Launcher interface {
	// Launch starts argv under the strategy selected for this host.
	// An argv or working directory that cannot be quoted for the login shell
	// returns an error and nothing is launched; every later failure,
	// including a spawn that errors immediately, surfaces asynchronously as
	// the handle's exit status.
	Launch(ctx context.Context, argv []string, opts Options) (Handle, error)
}

// Options adjust a single launch.
type Options struct {
	// Dir is the working directory for the child, normally the session root path.
	Dir string
	// ExtraEnv entries are appended to the parent environment.
	ExtraEnv []string
}

// Strategy describes how a session process is invoked.
// An empty Shell means direct execution of argv[0].
type Strategy struct {
	Shell string
}

// LoginShell reports whether the strategy wraps the command in a login shell.
func (s Strategy) LoginShell() bool { return s.Shell != "" }

// SelectStrategy decides the launch strategy from the OS and the user's shell.
// On POSIX hosts bash and zsh run the command through "-lc" so that version
// manager shims (rbenv, rvm, chruby) on the login PATH are in effect; any
// other shell, and every non-POSIX host, execs argv directly.
func SelectStrategy(goos, shellPath string) Strategy {
	if goos != "linux" && goos != "darwin" {
		return Strategy{}
	}
	if shellPath == "" {
		shellPath = _defaultShell
	}
	switch filepath.Base(shellPath) {
	case "bash", "zsh":
		return Strategy{Shell: shellPath}
	}
	return Strategy{}
}

// launcherImp implements Launcher.
type launcherImp struct {
	Logger *zap.SugaredLogger
	// GOOS pins the strategy decision, runtime.GOOS unless overridden.
	GOOS string
	// LookupEnv may be overridden to make shell selection testable.
	LookupEnv func(key string) (string, bool)
	// StartFunc may be overridden to intercept process starts in tests.
	StartFunc func(cmd *exec.Cmd) error
}

// Option defines options to customize the launcher's behavior.
type Option func(*launcherImp)

// WithLogger overrides the default noop logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *launcherImp) {
		l.Logger = logger
	}
}

// WithGOOS overrides the OS used for strategy selection.
func WithGOOS(goos string) Option {
	return func(l *launcherImp) {
		l.GOOS = goos
	}
}

// WithLookupEnv overrides environment lookups.
func WithLookupEnv(lookup func(key string) (string, bool)) Option {
	return func(l *launcherImp) {
		l.LookupEnv = lookup
	}
}

// WithStartFunc provides customized process start behavior.
func WithStartFunc(start func(cmd *exec.Cmd) error) Option {
	return func(l *launcherImp) {
		l.StartFunc = start
	}
}

// NewLauncher creates a new launcherImp with defaults suitable for production use.
func NewLauncher(opts ...Option) Launcher {
	l := &launcherImp{
		Logger:    zap.NewNop().Sugar(),
		GOOS:      runtime.GOOS,
		LookupEnv: os.LookupEnv,
		StartFunc: func(cmd *exec.Cmd) error { return cmd.Start() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch selects a strategy, builds the command, and starts it.
func (l *launcherImp) Launch(ctx context.Context, argv []string, opts Options) (Handle, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	shellPath, _ := l.LookupEnv(_envShell)
	strategy := SelectStrategy(l.GOOS, shellPath)

	cmd, err := buildCmd(strategy, argv, opts)
	if err != nil {
		return nil, fmt.Errorf("building session command: %w", err)
	}

	l.Logger.Infow("launching session process",
		"path", cmd.Path,
		"args", cmd.Args[1:],
		"dir", cmd.Dir,
		"loginShell", strategy.LoginShell(),
	)

	h := newHandle(cmd)
	h.start(l.StartFunc)
	return h, nil
}

func buildCmd(strategy Strategy, argv []string, opts Options) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	if strategy.LoginShell() {
		line, err := loginShellCommand(argv, opts.Dir)
		if err != nil {
			return nil, err
		}
		cmd = exec.Command(strategy.Shell, "-lc", line)
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.ExtraEnv...)
	return cmd, nil
}

// loginShellCommand builds the single command line handed to the login shell.
// Quoting must be lossless: the shell has to receive exactly the tokens that
// were built, so a token that cannot be represented refuses the launch.
func loginShellCommand(argv []string, dir string) (string, error) {
	for _, tok := range argv {
		if strings.ContainsRune(tok, 0) {
			return "", &errors.EscapeError{Token: tok}
		}
	}
	if strings.ContainsRune(dir, 0) {
		return "", &errors.EscapeError{Token: dir}
	}
	if dir == "" {
		return shellquote.Join(argv...), nil
	}
	return fmt.Sprintf("cd %s && %s", shellquote.Join(dir), shellquote.Join(argv...)), nil
}
