// Package entity contains the domain types for the sorbet-mux daemon.
package entity

import (
	"github.com/gofrs/uuid"
	sorbetclient "github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client"
	"github.com/rubydx/sorbet-mux/src/mux/internal/launcher"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

type keyType string

// SessionContextKey indicates the key to be used to identify the editor session UUID in the context.
const SessionContextKey keyType = "SessionUUID"

// SorbetConfigKey is the config block that contains Sorbet launch settings.
const SorbetConfigKey = "sorbet"

// EditorSession represents a single connected editor.
type EditorSession struct {
	UUID             uuid.UUID                  `json:"uuid" zap:"uuid"`
	InitializeParams *protocol.InitializeParams `json:"-" zap:"-"`
	Conn             *jsonrpc2.Conn             `json:"-" zap:"-"`
	// Folders holds the editor's workspace folder URIs, normalized to a trailing separator.
	Folders []string `json:"folders" zap:"folders"`
}

// SessionState describes the lifecycle of a server session.
// Absent is represented by a missing registry entry; the zero value
// exists so that an uninitialized state is never mistaken for a live one.
type SessionState int

const (
	// SessionStateAbsent indicates no session exists for the root.
	SessionStateAbsent SessionState = iota
	// SessionStateStarting indicates a launch is in flight.
	SessionStateStarting
	// SessionStateRunning indicates a live process with an established client.
	SessionStateRunning
	// SessionStateStopping indicates teardown has been issued.
	SessionStateStopping
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionStateStarting:
		return "starting"
	case SessionStateRunning:
		return "running"
	case SessionStateStopping:
		return "stopping"
	default:
		return "absent"
	}
}

// ServerSession represents a live Sorbet language server process serving one outermost root.
type ServerSession struct {
	UUID  uuid.UUID    `json:"uuid" zap:"uuid"`
	Root  string       `json:"root" zap:"root"`
	State SessionState `json:"state" zap:"state"`

	Proc   launcher.Handle     `json:"-" zap:"-"`
	Client sorbetclient.Client `json:"-" zap:"-"`

	// DiagnosticLogPath is the file receiving the process's stderr stream.
	DiagnosticLogPath string `json:"diagnosticLogPath" zap:"diagnosticLogPath"`
	// DebugPort is nonzero when the debug-port convention is enabled.
	DebugPort int `json:"debugPort" zap:"debugPort"`
	// StopWatch releases the session's file watcher.
	StopWatch func() error `json:"-" zap:"-"`
}

// SorbetConfig holds the resolved launch settings for Sorbet sessions.
type SorbetConfig struct {
	// CommandPath is the Sorbet executable used when bundler is not in play.
	CommandPath string `yaml:"commandPath"`
	// UseBundler prefixes the command with "<bundlerPath> exec srb".
	UseBundler bool `yaml:"useBundler"`
	// BundlerPath is the bundler executable.
	BundlerPath string `yaml:"bundlerPath"`
	// UseWatchman controls whether Sorbet watches the filesystem itself.
	UseWatchman bool `yaml:"useWatchman"`
}

// DefaultSorbetConfig returns the settings used for keys the config file leaves unset.
func DefaultSorbetConfig() SorbetConfig {
	return SorbetConfig{
		CommandPath: "srb",
		UseBundler:  false,
		BundlerPath: "bundle",
		UseWatchman: true,
	}
}
