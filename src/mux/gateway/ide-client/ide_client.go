// Package notifier sends outbound notifications to connected editors.
package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"github.com/rubydx/sorbet-mux/src/mux/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const _errSendToClient = "sending notification to editor: %w"

// Gateway is used to send outbound notifications to editors.
// All calls should include a context with an editor session UUID, which is
// used to route each notification to the correct connection.
type Gateway interface {
	// RegisterClient registers a new client with the gateway. Should be called each time an editor connection is initialized.
	RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error
	// DeregisterClient removes a client from the gateway. Should be called each time an editor connection is closed.
	DeregisterClient(ctx context.Context, id uuid.UUID) error

	// LogMessage sends a window/logMessage notification to the editor.
	LogMessage(ctx context.Context, params *protocol.LogMessageParams) error
	// ShowMessage sends a window/showMessage notification to the editor.
	ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error
	// PublishDiagnostics pushes diagnostics for a document to the editor.
	PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error
}

type gateway struct {
	clients   map[uuid.UUID]protocol.Client
	clientsMu sync.Mutex
	logger    *zap.Logger
}

// New returns a Gateway for sending editor notifications.
func New(logger *zap.Logger) Gateway {
	return &gateway{
		clients: make(map[uuid.UUID]protocol.Client),
		logger:  logger,
	}
}

func (g *gateway) RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	g.clients[id] = protocol.ClientDispatcher(*conn, g.logger)
	return nil
}

func (g *gateway) DeregisterClient(ctx context.Context, id uuid.UUID) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	delete(g.clients, id)
	return nil
}

func (g *gateway) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	c, err := g.getClient(ctx)
	if err != nil {
		return fmt.Errorf(_errSendToClient, err)
	}
	return c.LogMessage(ctx, params)
}

func (g *gateway) ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error {
	c, err := g.getClient(ctx)
	if err != nil {
		return fmt.Errorf(_errSendToClient, err)
	}
	return c.ShowMessage(ctx, params)
}

func (g *gateway) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	c, err := g.getClient(ctx)
	if err != nil {
		return fmt.Errorf(_errSendToClient, err)
	}
	return c.PublishDiagnostics(ctx, params)
}

// getClient resolves the editor client for the session UUID on the context.
func (g *gateway) getClient(ctx context.Context) (protocol.Client, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, err
	}

	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()
	c, ok := g.clients[id]
	if !ok {
		return nil, &errors.UUIDNotFoundError{UUID: id}
	}
	return c, nil
}
