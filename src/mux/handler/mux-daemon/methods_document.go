package muxdaemon

import (
	"context"

	"github.com/rubydx/sorbet-mux/src/mux/mapper"
	"go.lsp.dev/jsonrpc2"
)

func (r *jsonRPCRouter) DidOpen(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToDidOpenTextDocumentParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.muxdaemon.DidOpen(ctx, params)
	return reply(ctx, nil, err)
}

func (r *jsonRPCRouter) DidChangeWatchedFiles(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToDidChangeWatchedFilesParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.muxdaemon.DidChangeWatchedFiles(ctx, params)
	return reply(ctx, nil, err)
}

func (r *jsonRPCRouter) DidChangeWorkspaceFolders(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToDidChangeWorkspaceFoldersParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.muxdaemon.DidChangeWorkspaceFolders(ctx, params)
	return reply(ctx, nil, err)
}
