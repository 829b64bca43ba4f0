// Package muxdaemon implements the mux-daemon service's editor-facing JSON-RPC handlers.
package muxdaemon

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	controller "github.com/rubydx/sorbet-mux/src/mux/controller/mux-daemon"
	"github.com/rubydx/sorbet-mux/src/mux/entity"
	"github.com/rubydx/sorbet-mux/src/mux/internal/jsonrpcfx"
	tally "github.com/uber-go/tally/v4"
	"go.lsp.dev/jsonrpc2"
)

// Handler represents the mux-daemon's editor connection API.
type Handler = jsonrpcfx.ConnectionManager

// New constructs a new mux-daemon Handler and registers it to serve incoming editor connections.
func New(ctrl controller.Controller, jsonrpcmod jsonrpcfx.JSONRPCModule, stats tally.Scope) (Handler, error) {
	c := jsonRPCConnectionManager{
		ctrl:  ctrl,
		stats: stats.SubScope("json_rpc"),
	}
	if err := jsonrpcmod.RegisterConnectionManager(&c); err != nil {
		return nil, err
	}

	return &c, nil
}

type jsonRPCConnectionManager struct {
	ctrl  controller.Controller
	stats tally.Scope
}

// NewConnection will register a new connection and return a router that includes its UUID.
func (c *jsonRPCConnectionManager) NewConnection(ctx context.Context, conn *jsonrpc2.Conn) (router jsonrpcfx.Router, err error) {
	id, err := c.ctrl.InitSession(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("error while creating new connection: %w", err)
	}

	r := jsonRPCRouter{
		muxdaemon: c.ctrl,
		uuid:      id,
		stats:     c.stats,
	}

	return &r, nil
}

// RemoveConnection cleans up a closed connection.
func (c *jsonRPCConnectionManager) RemoveConnection(ctx context.Context, id uuid.UUID) {
	// Ensure session is removed even if no Exit call has been received.
	ctx = context.WithValue(ctx, entity.SessionContextKey, id)
	c.ctrl.EndSession(ctx, id)
}
