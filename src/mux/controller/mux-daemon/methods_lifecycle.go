package muxdaemon

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rubydx/sorbet-mux/src/mux/internal/version"
	workspaceutils "github.com/rubydx/sorbet-mux/src/mux/internal/workspace-utils"
	"github.com/rubydx/sorbet-mux/src/mux/mapper"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// Initialize stores the editor's workspace folders and advertises the
// daemon's capabilities. Sorbet sessions start lazily on the first relevant
// document open, not here.
func (c *controller) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	result := &protocol.InitializeResult{
		ServerInfo: &protocol.ServerInfo{
			Name:    "Sorbet Multiplexer",
			Version: version.Version,
		},
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
			},
			Workspace: &protocol.ServerCapabilitiesWorkspace{
				WorkspaceFolders: &protocol.ServerCapabilitiesWorkspaceFolders{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
	}

	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting session from context: %w", err)
	}

	c.editorsMu.Lock()
	s, ok := c.editors[id]
	if !ok {
		c.editorsMu.Unlock()
		return nil, fmt.Errorf("initialize before connection setup for %s", id)
	}
	s.InitializeParams = params
	for _, folder := range params.WorkspaceFolders {
		root := workspaceutils.NormalizeRoot(folder.URI)
		if root == "" || containsFolder(s.Folders, root) {
			continue
		}
		s.Folders = append(s.Folders, root)
	}
	c.editorsMu.Unlock()

	c.workspaceUtils.AddRoots(ctx, params.WorkspaceFolders)
	if len(params.WorkspaceFolders) == 0 {
		c.logger.Infow("editor connected without workspace folders", "uuid", id)
	}

	return result, nil
}

// Initialized handles any actions that need to occur immediately after initialization.
func (c *controller) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	c.ideGateway.ShowMessage(ctx, &protocol.ShowMessageParams{
		Message: "Connection to the Sorbet multiplexer is now initialized.",
		Type:    protocol.MessageTypeInfo,
	})
	return nil
}

// Shutdown is sent just before Exit to indicate that the session will exit.
// Session teardown happens on Exit, so acknowledging is all that is needed.
func (c *controller) Shutdown(ctx context.Context) error {
	return nil
}

// Exit will be used to either clean up from an individual connection, or shutdown the whole server.
func (c *controller) Exit(ctx context.Context) error {
	if c.fullShutdown {
		// Zero out the timer to trigger immediate shutdown.
		c.idleTimerMu.Lock()
		c.idleTimer.Reset(0)
		c.idleTimerMu.Unlock()
		return nil
	}

	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return fmt.Errorf("error during session exit: %w", err)
	}
	return c.EndSession(ctx, id)
}

// RequestFullShutdown will set the controller to treat subsequent Shutdown and Exit requests as requests to exit the entire process.
func (c *controller) RequestFullShutdown(ctx context.Context) error {
	c.fullShutdown = true

	return nil
}

// InitSession creates a new empty editor session and returns its UUID.
func (c *controller) InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error) {
	defer c.refreshIdleTimer(ctx)

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	session := mapper.UUIDToEditorSession(id, conn)
	if err := c.ideGateway.RegisterClient(ctx, id, conn); err != nil {
		return uuid.Nil, err
	}

	c.editorsMu.Lock()
	c.editors[id] = session
	c.editorsMu.Unlock()
	return id, nil
}

// EndSession includes any cleanup at the end of the editor session, during or
// after the last JSON-RPC request. Sorbet sessions that served only this
// editor's folders are stopped.
func (c *controller) EndSession(ctx context.Context, id uuid.UUID) error {
	defer c.refreshIdleTimer(ctx)

	c.editorsMu.Lock()
	s, ok := c.editors[id]
	delete(c.editors, id)
	c.editorsMu.Unlock()

	if err := c.ideGateway.DeregisterClient(ctx, id); err != nil {
		c.logger.Error(err)
	}
	if !ok {
		return nil
	}

	return c.releaseFolders(ctx, s.Folders)
}

func containsFolder(folders []string, folder string) bool {
	for _, f := range folders {
		if f == folder {
			return true
		}
	}
	return false
}
