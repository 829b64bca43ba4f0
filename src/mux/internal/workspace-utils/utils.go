// Package workspaceutils tracks the workspace folders that editors currently
// have open and resolves documents to the outermost root that should own a
// Sorbet session.
package workspaceutils

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a new WorkspaceUtils.
var Module = fx.Provide(New)

// WorkspaceUtils maintains the set of open workspace roots and resolves
// folders against it. Folders added by several editors are reference counted,
// so a root stays registered until the last editor holding it lets go.
type WorkspaceUtils interface {
	// AddRoots registers workspace folders as open.
	AddRoots(ctx context.Context, folders []protocol.WorkspaceFolder)
	// RemoveRoots unregisters previously added workspace folders.
	RemoveRoots(ctx context.Context, folders []protocol.WorkspaceFolder)
	// Outermost returns the shortest registered root that encloses the given
	// folder, or the normalized folder itself when no registered root does.
	Outermost(ctx context.Context, folder string) string
	// Contains reports whether the given root is currently registered.
	Contains(ctx context.Context, root string) bool
}

// Params are the parameters required to create a new WorkspaceUtils.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
}

type workspaceUtilsImpl struct {
	logger *zap.SugaredLogger

	mu     sync.Mutex
	refs   map[string]int
	sorted []string // rebuilt on demand, nil after a mutation
}

// New creates a new WorkspaceUtils.
func New(p Params) WorkspaceUtils {
	return &workspaceUtilsImpl{
		logger: p.Logger,
		refs:   make(map[string]int),
	}
}

// NormalizeRoot appends a trailing slash to the root unless one is already
// present, so that prefix checks cannot match partial path segments.
func NormalizeRoot(root string) string {
	if root == "" || strings.HasSuffix(root, "/") {
		return root
	}
	return root + "/"
}

// ContainingFolder returns the longest of the given normalized folders that
// is a prefix of the document URI, matching the editor's own notion of the
// folder a document belongs to.
func ContainingFolder(folders []string, docURI string) (string, bool) {
	result := ""
	for _, folder := range folders {
		if strings.HasPrefix(docURI, folder) && len(folder) > len(result) {
			result = folder
		}
	}
	return result, result != ""
}

func (u *workspaceUtilsImpl) AddRoots(ctx context.Context, folders []protocol.WorkspaceFolder) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, folder := range folders {
		root := NormalizeRoot(folder.URI)
		if root == "" {
			continue
		}
		u.refs[root]++
		if u.refs[root] == 1 {
			u.sorted = nil
		}
	}
}

func (u *workspaceUtilsImpl) RemoveRoots(ctx context.Context, folders []protocol.WorkspaceFolder) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, folder := range folders {
		root := NormalizeRoot(folder.URI)
		count, ok := u.refs[root]
		if !ok {
			u.logger.Debugw("removal of unregistered workspace root", "root", root)
			continue
		}
		if count <= 1 {
			delete(u.refs, root)
			u.sorted = nil
			continue
		}
		u.refs[root] = count - 1
	}
}

func (u *workspaceUtilsImpl) Outermost(ctx context.Context, folder string) string {
	target := NormalizeRoot(folder)

	u.mu.Lock()
	defer u.mu.Unlock()
	for _, root := range u.sortedRootsLocked() {
		if strings.HasPrefix(target, root) {
			return root
		}
	}
	return target
}

func (u *workspaceUtilsImpl) Contains(ctx context.Context, root string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	_, ok := u.refs[NormalizeRoot(root)]
	return ok
}

// sortedRootsLocked returns the registered roots ordered shortest first, ties
// broken lexically, so that the first prefix match is the outermost root.
// Callers must hold u.mu.
func (u *workspaceUtilsImpl) sortedRootsLocked() []string {
	if u.sorted != nil {
		return u.sorted
	}

	roots := make([]string, 0, len(u.refs))
	for root := range u.refs {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		if len(roots[i]) != len(roots[j]) {
			return len(roots[i]) < len(roots[j])
		}
		return roots[i] < roots[j]
	})
	u.sorted = roots
	return u.sorted
}
