package mapper

import (
	"context"
	"testing"

	"github.com/rubydx/sorbet-mux/src/mux/entity"
	"github.com/rubydx/sorbet-mux/src/mux/factory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerSessionRoundTrip(t *testing.T) {
	session := &entity.ServerSession{
		UUID:              factory.UUID(),
		Root:              "file:///repo/",
		State:             entity.SessionStateRunning,
		DiagnosticLogPath: "/tmp/sorbet-mux-abc123.log",
		DebugPort:         9230,
	}

	m := ServerSessionToModel(session)
	assert.Equal(t, session.UUID, m.UUID)
	assert.Equal(t, session.Root, m.Root)
	assert.Equal(t, int(entity.SessionStateRunning), m.State)

	restored, err := ModelToServerSession(m)
	require.NoError(t, err)
	assert.Equal(t, session, restored)
}

func TestUUIDToEditorSession(t *testing.T) {
	id := factory.UUID()
	s := UUIDToEditorSession(id, nil)
	assert.Equal(t, id, s.UUID)
	assert.Nil(t, s.Conn)
	assert.Empty(t, s.Folders)
}

func TestContextToSessionUUID(t *testing.T) {
	t.Run("uuid on context", func(t *testing.T) {
		id := factory.UUID()
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)
		result, err := ContextToSessionUUID(ctx)
		assert.NoError(t, err)
		assert.Equal(t, id, result)
	})

	t.Run("missing uuid", func(t *testing.T) {
		_, err := ContextToSessionUUID(context.Background())
		assert.Error(t, err)
	})

	t.Run("wrong value type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), entity.SessionContextKey, "not-a-uuid")
		_, err := ContextToSessionUUID(ctx)
		assert.Error(t, err)
	})
}
