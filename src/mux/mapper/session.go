package mapper

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/rubydx/sorbet-mux/src/mux/entity"
	"github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"github.com/rubydx/sorbet-mux/src/mux/model"
	"go.lsp.dev/jsonrpc2"
)

// ServerSessionToModel maps a ServerSession entity to its model equivalent.
func ServerSessionToModel(s *entity.ServerSession) *model.ServerSession {
	return &model.ServerSession{
		UUID:              s.UUID,
		Root:              s.Root,
		State:             int(s.State),
		Proc:              s.Proc,
		Client:            s.Client,
		DiagnosticLogPath: s.DiagnosticLogPath,
		DebugPort:         s.DebugPort,
		StopWatch:         s.StopWatch,
	}
}

// ModelToServerSession maps a model ServerSession to its entity equivalent.
func ModelToServerSession(s *model.ServerSession) (*entity.ServerSession, error) {
	return &entity.ServerSession{
		UUID:              s.UUID,
		Root:              s.Root,
		State:             entity.SessionState(s.State),
		Proc:              s.Proc,
		Client:            s.Client,
		DiagnosticLogPath: s.DiagnosticLogPath,
		DebugPort:         s.DebugPort,
		StopWatch:         s.StopWatch,
	}, nil
}

// UUIDToEditorSession initializes a new EditorSession entity with the assigned uuid and connection.
func UUIDToEditorSession(u uuid.UUID, c *jsonrpc2.Conn) *entity.EditorSession {
	return &entity.EditorSession{
		UUID: u,
		Conn: c,
	}
}

// ContextToSessionUUID extracts the editor session UUID from a context.
func ContextToSessionUUID(c context.Context) (uuid.UUID, error) {
	s, ok := c.Value(entity.SessionContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, &errors.NoSessionFoundError{}
	}
	return s, nil
}
