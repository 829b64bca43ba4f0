// Package sorbetclient maintains the daemon's protocol connection to a
// launched Sorbet process. The daemon is the LSP client on this edge: it
// performs the handshake, forwards document and watched-file events, and
// relays server-initiated traffic back toward the owning editor.
package sorbetclient

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/pkg/fakenet"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const _clientName = "sorbet-mux"

// Module provides a Dialer into an fx application.
var Module = fx.Provide(NewDialer)

// Relay receives traffic a Sorbet session pushes at the daemon, to be
// surfaced in the owning editor.
type Relay interface {
	PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error
	LogMessage(ctx context.Context, params *protocol.LogMessageParams) error
	ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error
}

// Client is the daemon's handle on one session's protocol connection.
type Client interface {
	// Initialize performs the initialize/initialized handshake for the session root.
	Initialize(ctx context.Context) (*protocol.InitializeResult, error)
	// DidOpen forwards a document open to the session.
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	// DidChangeWatchedFiles forwards file change events to the session.
	DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error
	// Shutdown sends the shutdown request followed by the exit notification.
	Shutdown(ctx context.Context) error
	// Close tears down the connection without the protocol goodbye.
	Close() error
}

// Dialer creates protocol clients over launched process pipes.
type Dialer interface {
	Dial(ctx context.Context, params DialParams) Client
}

// DialParams configure a new session client.
type DialParams struct {
	// Root is the session's outermost root URI, trailing separator included.
	Root string
	// Stdin and Stdout are the launched process's pipes.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	// Relay receives diagnostics and messages pushed by the session; nil drops them.
	Relay Relay
}

// NewDialer returns a Dialer for live Sorbet processes.
func NewDialer(logger *zap.Logger) Dialer {
	return &dialer{logger: logger}
}

type dialer struct {
	logger *zap.Logger
}

// Dial wires a protocol client over the process's stdio and starts dispatch.
func (d *dialer) Dial(ctx context.Context, params DialParams) Client {
	stream := jsonrpc2.NewStream(fakenet.NewConn(_clientName, params.Stdout, params.Stdin))
	conn := jsonrpc2.NewConn(stream)

	c := &client{
		root:   params.Root,
		conn:   conn,
		server: protocol.ServerDispatcher(conn, d.logger),
		logger: d.logger.Sugar(),
	}

	relay := &relayClient{relay: params.Relay}
	conn.Go(ctx, protocol.ClientHandler(relay, jsonrpc2.MethodNotFoundHandler))
	return c
}

type client struct {
	root   string
	conn   jsonrpc2.Conn
	server protocol.Server
	logger *zap.SugaredLogger
}

func (c *client) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	rootURI := strings.TrimSuffix(c.root, "/")
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		ClientInfo: &protocol.ClientInfo{
			Name: _clientName,
		},
		RootURI: protocol.DocumentURI(rootURI),
		Capabilities: protocol.ClientCapabilities{
			Workspace: &protocol.WorkspaceClientCapabilities{
				WorkspaceFolders: true,
			},
		},
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: rootURI, Name: path.Base(rootURI)},
		},
	}

	result, err := c.server.Initialize(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("initialize handshake: %w", err)
	}
	if err := c.server.Initialized(ctx, &protocol.InitializedParams{}); err != nil {
		return nil, fmt.Errorf("initialized notification: %w", err)
	}

	if result.ServerInfo != nil {
		c.logger.Infow("session initialized", "root", c.root, "server", result.ServerInfo.Name)
	}
	return result, nil
}

func (c *client) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	return c.server.DidOpen(ctx, params)
}

func (c *client) DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error {
	return c.server.DidChangeWatchedFiles(ctx, params)
}

func (c *client) Shutdown(ctx context.Context) error {
	err := c.server.Shutdown(ctx)
	return multierr.Append(err, c.server.Exit(ctx))
}

func (c *client) Close() error {
	return c.conn.Close()
}

// relayClient answers Sorbet's client-bound calls. Diagnostics and messages
// pass through to the editor; capability and configuration traffic gets empty
// answers since the daemon owns those concerns.
type relayClient struct {
	relay Relay
}

var _ protocol.Client = (*relayClient)(nil)

func (r *relayClient) Progress(ctx context.Context, params *protocol.ProgressParams) error {
	return nil
}

func (r *relayClient) WorkDoneProgressCreate(ctx context.Context, params *protocol.WorkDoneProgressCreateParams) error {
	return nil
}

func (r *relayClient) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	if r.relay == nil {
		return nil
	}
	return r.relay.LogMessage(ctx, params)
}

func (r *relayClient) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	if r.relay == nil {
		return nil
	}
	return r.relay.PublishDiagnostics(ctx, params)
}

func (r *relayClient) ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error {
	if r.relay == nil {
		return nil
	}
	return r.relay.ShowMessage(ctx, params)
}

func (r *relayClient) ShowMessageRequest(ctx context.Context, params *protocol.ShowMessageRequestParams) (*protocol.MessageActionItem, error) {
	// Prompting is editor business; degrade to a plain message with no selection.
	if r.relay == nil {
		return nil, nil
	}
	return nil, r.relay.ShowMessage(ctx, &protocol.ShowMessageParams{
		Message: params.Message,
		Type:    params.Type,
	})
}

func (r *relayClient) Telemetry(ctx context.Context, params interface{}) error {
	return nil
}

func (r *relayClient) RegisterCapability(ctx context.Context, params *protocol.RegistrationParams) error {
	return nil
}

func (r *relayClient) UnregisterCapability(ctx context.Context, params *protocol.UnregistrationParams) error {
	return nil
}

func (r *relayClient) ApplyEdit(ctx context.Context, params *protocol.ApplyWorkspaceEditParams) (*protocol.ApplyWorkspaceEditResponse, error) {
	return &protocol.ApplyWorkspaceEditResponse{Applied: false}, nil
}

func (r *relayClient) Configuration(ctx context.Context, params *protocol.ConfigurationParams) ([]interface{}, error) {
	return nil, nil
}

func (r *relayClient) WorkspaceFolders(ctx context.Context) ([]protocol.WorkspaceFolder, error) {
	return nil, nil
}

func (r *relayClient) ShowDocument(ctx context.Context, params *protocol.ShowDocumentParams) (*protocol.ShowDocumentResult, error) {
	return &protocol.ShowDocumentResult{Success: false}, nil
}
