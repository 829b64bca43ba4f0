package muxdaemon

import (
	"context"
	"strings"

	"github.com/rubydx/sorbet-mux/src/mux/entity"
	workspaceutils "github.com/rubydx/sorbet-mux/src/mux/internal/workspace-utils"
	"github.com/rubydx/sorbet-mux/src/mux/mapper"
	"go.lsp.dev/protocol"
	"go.uber.org/multierr"
)

const _fileURIPrefix = "file://"

// DidOpen resolves an opened Ruby document to its outermost workspace root
// and makes sure a Sorbet session is serving that root. Documents without a
// resolvable folder are ignored.
func (c *controller) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	docURI := string(doc.URI)
	if doc.LanguageID != _rubyLanguageID || !strings.HasPrefix(docURI, _fileURIPrefix) {
		return nil
	}

	folders, err := c.editorFolders(ctx)
	if err != nil {
		return err
	}

	folder, ok := workspaceutils.ContainingFolder(folders, docURI)
	if !ok {
		c.stats.Counter(_counterResolutionMiss).Inc(1)
		c.logger.Debugw("document outside the editor's workspace folders", "uri", docURI)
		return nil
	}

	root := c.workspaceUtils.Outermost(ctx, folder)
	c.stats.Counter(_counterDocumentsRouted).Inc(1)
	started, err := c.sessions.EnsureStarted(ctx, root, c.startSession)
	if err != nil {
		return err
	}
	if started {
		c.logger.Infow("starting sorbet session", "root", root, "uri", docURI)
		return nil
	}

	// An established session also learns about the open so its typechecking
	// prioritizes the file.
	session, err := c.sessions.Get(ctx, root)
	if err != nil || session.State != entity.SessionStateRunning || session.Client == nil {
		return nil
	}
	return session.Client.DidOpen(ctx, params)
}

// DidChangeWatchedFiles forwards editor-reported file changes to the sessions
// owning the affected roots.
func (c *controller) DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error {
	folders, err := c.editorFolders(ctx)
	if err != nil {
		return err
	}

	byRoot := make(map[string][]*protocol.FileEvent)
	for _, change := range params.Changes {
		folder, ok := workspaceutils.ContainingFolder(folders, string(change.URI))
		if !ok {
			continue
		}
		root := c.workspaceUtils.Outermost(ctx, folder)
		byRoot[root] = append(byRoot[root], change)
	}

	var errs error
	for root, changes := range byRoot {
		session, err := c.sessions.Get(ctx, root)
		if err != nil || session.State != entity.SessionStateRunning || session.Client == nil {
			continue
		}
		if err := session.Client.DidChangeWatchedFiles(ctx, &protocol.DidChangeWatchedFilesParams{Changes: changes}); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// DidChangeWorkspaceFolders applies folder additions and removals for the
// editor. Sessions whose roots no longer belong to any editor are stopped.
func (c *controller) DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return err
	}

	c.editorsMu.Lock()
	s, ok := c.editors[id]
	if !ok {
		c.editorsMu.Unlock()
		return nil
	}

	added := make([]protocol.WorkspaceFolder, 0, len(params.Event.Added))
	for _, folder := range params.Event.Added {
		root := workspaceutils.NormalizeRoot(folder.URI)
		if root == "" || containsFolder(s.Folders, root) {
			continue
		}
		s.Folders = append(s.Folders, root)
		added = append(added, folder)
	}

	removed := make([]string, 0, len(params.Event.Removed))
	for _, folder := range params.Event.Removed {
		root := workspaceutils.NormalizeRoot(folder.URI)
		if !containsFolder(s.Folders, root) {
			continue
		}
		s.Folders = removeFolder(s.Folders, root)
		removed = append(removed, root)
	}
	c.editorsMu.Unlock()

	c.workspaceUtils.AddRoots(ctx, added)
	return c.releaseFolders(ctx, removed)
}

func removeFolder(folders []string, folder string) []string {
	result := folders[:0]
	for _, f := range folders {
		if f != folder {
			result = append(result, f)
		}
	}
	return result
}
