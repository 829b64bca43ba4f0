package muxdaemon

import (
	"context"

	"github.com/rubydx/sorbet-mux/src/mux/entity"
	sorbetclient "github.com/rubydx/sorbet-mux/src/mux/gateway/sorbet-client"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
)

// sessionRelay fans traffic originating from one root's Sorbet session out to
// every editor currently holding a folder inside that root.
type sessionRelay struct {
	c    *controller
	root string
}

var _ sorbetclient.Relay = (*sessionRelay)(nil)

func (r *sessionRelay) PublishDiagnostics(ctx context.Context, params *protocol.PublishDiagnosticsParams) error {
	return r.each(ctx, func(editorCtx context.Context) error {
		return r.c.ideGateway.PublishDiagnostics(editorCtx, params)
	})
}

func (r *sessionRelay) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	return r.each(ctx, func(editorCtx context.Context) error {
		return r.c.ideGateway.LogMessage(editorCtx, params)
	})
}

func (r *sessionRelay) ShowMessage(ctx context.Context, params *protocol.ShowMessageParams) error {
	return r.each(ctx, func(editorCtx context.Context) error {
		return r.c.ideGateway.ShowMessage(editorCtx, params)
	})
}

func (r *sessionRelay) each(ctx context.Context, send func(ctx context.Context) error) error {
	var errs error
	for _, id := range r.c.editorsForRoot(r.root) {
		editorCtx := context.WithValue(ctx, entity.SessionContextKey, id)
		if err := send(editorCtx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
