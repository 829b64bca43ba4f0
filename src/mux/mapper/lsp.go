package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

// missingParams reports whether the request carries no usable params payload.
func missingParams(req jsonrpc2.Request) bool {
	params := req.Params()
	return len(params) == 0 || string(params) == "null"
}

// RequestToInitializeParams maps the parameters from a jsonrpc2.Request into protocol.InitializeParams.
func RequestToInitializeParams(req jsonrpc2.Request) (*protocol.InitializeParams, error) {
	if missingParams(req) {
		return nil, errors.NoMethodParamsError
	}
	params := protocol.InitializeParams{}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

// RequestToInitializedParams maps the parameters from a jsonrpc2.Request into protocol.InitializedParams.
func RequestToInitializedParams(req jsonrpc2.Request) (*protocol.InitializedParams, error) {
	params := protocol.InitializedParams{}
	if len(req.Params()) > 0 {
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return nil, wrapErrParse(err)
		}
	}
	return &params, nil
}

// RequestToDidOpenTextDocumentParams maps the parameters from a jsonrpc2.Request into protocol.DidOpenTextDocumentParams.
func RequestToDidOpenTextDocumentParams(req jsonrpc2.Request) (*protocol.DidOpenTextDocumentParams, error) {
	if missingParams(req) {
		return nil, errors.NoMethodParamsError
	}
	params := protocol.DidOpenTextDocumentParams{}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

// RequestToDidChangeWorkspaceFoldersParams maps the parameters from a jsonrpc2.Request into protocol.DidChangeWorkspaceFoldersParams.
func RequestToDidChangeWorkspaceFoldersParams(req jsonrpc2.Request) (*protocol.DidChangeWorkspaceFoldersParams, error) {
	if missingParams(req) {
		return nil, errors.NoMethodParamsError
	}
	params := protocol.DidChangeWorkspaceFoldersParams{}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

// RequestToDidChangeWatchedFilesParams maps the parameters from a jsonrpc2.Request into protocol.DidChangeWatchedFilesParams.
func RequestToDidChangeWatchedFilesParams(req jsonrpc2.Request) (*protocol.DidChangeWatchedFilesParams, error) {
	if missingParams(req) {
		return nil, errors.NoMethodParamsError
	}
	params := protocol.DidChangeWatchedFilesParams{}
	if err := json.Unmarshal(req.Params(), &params); err != nil {
		return nil, wrapErrParse(err)
	}
	return &params, nil
}

func wrapErrParse(err error) error {
	return fmt.Errorf("%s: %w", jsonrpc2.ErrParse, err)
}
