// Package session tracks at most one Sorbet server session per workspace
// root and serializes the lifecycle transitions between them.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/rubydx/sorbet-mux/src/mux/entity"
	"github.com/rubydx/sorbet-mux/src/mux/internal/errors"
	"github.com/rubydx/sorbet-mux/src/mux/mapper"
	"github.com/rubydx/sorbet-mux/src/mux/model"
	tally "github.com/uber-go/tally/v4"
	"go.uber.org/multierr"
)

// StartFunc launches the Sorbet session for a workspace root. It runs on its
// own goroutine with a fresh context and returns the settled session.
type StartFunc func(ctx context.Context, root string) (*entity.ServerSession, error)

// StopFunc tears down a previously started session.
type StopFunc func(ctx context.Context, session *entity.ServerSession) error

// Repository is a root-scoped repository of server sessions.
type Repository interface {
	// EnsureStarted records a starting session for the root and kicks off
	// the start attempt, unless the root already has one. It reports whether
	// a new start was initiated and never waits for the attempt to settle.
	EnsureStarted(ctx context.Context, root string, start StartFunc) (bool, error)
	// Stop removes the root's session from the store and tears it down. A
	// stop that races a pending start waits for the start attempt to settle
	// before tearing down its result. Stopping an absent root is a no-op.
	Stop(ctx context.Context, root string, stop StopFunc) error
	// StopAll stops every tracked session concurrently and returns the
	// combined failures once all of them have settled.
	StopAll(ctx context.Context, stop StopFunc) error
	// Get returns a snapshot of the session tracked for the root.
	Get(ctx context.Context, root string) (*entity.ServerSession, error)
	// ActiveRoots returns the roots that currently have a tracked session.
	ActiveRoots(ctx context.Context) []string
	// SessionCount returns the total count of tracked sessions.
	SessionCount(ctx context.Context) (int, error)
}

// entry holds the lifecycle state for one workspace root. done is closed once
// the start attempt has settled; session is stable afterwards and nil when
// the attempt failed.
type entry struct {
	state   entity.SessionState
	session *model.ServerSession
	done    chan struct{}
}

type repository struct {
	mu       sync.Mutex
	memstore map[string]*entry
	stats    tally.Scope
}

// New returns a repository to an in-memory per-root session store.
func New(stats tally.Scope) Repository {
	return &repository{
		memstore: make(map[string]*entry),
		stats:    stats,
	}
}

// EnsureStarted makes the root's session exist. The starting entry is visible
// to other callers before this method returns, so concurrent calls for the
// same root initiate a single launch.
func (r *repository) EnsureStarted(ctx context.Context, root string, start StartFunc) (bool, error) {
	if start == nil {
		return false, errors.New("can't ensure a session without a start function")
	}

	r.mu.Lock()
	if _, ok := r.memstore[root]; ok {
		r.mu.Unlock()
		return false, nil
	}
	e := &entry{
		state: entity.SessionStateStarting,
		done:  make(chan struct{}),
	}
	r.memstore[root] = e
	r.updateGaugeLocked()
	r.mu.Unlock()

	go r.runStart(root, e, start)
	return true, nil
}

// runStart drives a single start attempt. It runs detached from the request
// context so that an editor disconnect cannot abort a launch in progress.
func (r *repository) runStart(root string, e *entry, start StartFunc) {
	session, err := start(context.Background(), root)

	r.mu.Lock()
	if err != nil {
		// A concurrent Stop may have claimed the entry already, and a later
		// EnsureStarted may even have replaced it; only drop it if it is
		// still ours.
		if r.memstore[root] == e {
			delete(r.memstore, root)
			r.updateGaugeLocked()
		}
	} else {
		e.session = mapper.ServerSessionToModel(session)
		e.state = entity.SessionStateRunning
	}
	r.mu.Unlock()
	close(e.done)
}

// Stop removes the Session associated with the given root and tears it down.
func (r *repository) Stop(ctx context.Context, root string, stop StopFunc) error {
	r.mu.Lock()
	e, ok := r.memstore[root]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.memstore, root)
	r.updateGaugeLocked()
	r.mu.Unlock()

	return r.stopEntry(ctx, e, stop)
}

// StopAll removes every Session from the store and tears them down concurrently.
func (r *repository) StopAll(ctx context.Context, stop StopFunc) error {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.memstore))
	for _, e := range r.memstore {
		entries = append(entries, e)
	}
	r.memstore = make(map[string]*entry)
	r.updateGaugeLocked()
	r.mu.Unlock()

	var (
		wg      sync.WaitGroup
		errorMu sync.Mutex
		errs    []error
	)
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			if err := r.stopEntry(ctx, e, stop); err != nil {
				errorMu.Lock()
				errs = append(errs, err)
				errorMu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

// stopEntry waits for the entry's start attempt to settle and then tears the
// session down. The caller must have removed the entry from the store first,
// which makes it the entry's sole owner.
func (r *repository) stopEntry(ctx context.Context, e *entry, stop StopFunc) error {
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.session == nil {
		// The start attempt failed, so there is nothing to tear down.
		return nil
	}

	e.state = entity.SessionStateStopping
	e.session.State = int(entity.SessionStateStopping)
	r.stats.Counter("session_stops").Inc(1)
	if stop == nil {
		return nil
	}
	session, err := mapper.ModelToServerSession(e.session)
	if err != nil {
		return err
	}
	return stop(ctx, session)
}

// Get returns a snapshot of the Session associated with the given root.
func (r *repository) Get(ctx context.Context, root string) (*entity.ServerSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.memstore[root]
	if !ok {
		return nil, &errors.RootNotFoundError{Root: root}
	}
	if e.session == nil {
		return &entity.ServerSession{Root: root, State: e.state}, nil
	}
	session, err := mapper.ModelToServerSession(e.session)
	if err != nil {
		return nil, err
	}
	session.State = e.state
	return session, nil
}

// ActiveRoots returns the workspace roots with a tracked session, sorted for
// stable iteration.
func (r *repository) ActiveRoots(ctx context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roots := make([]string, 0, len(r.memstore))
	for root := range r.memstore {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	return roots
}

// SessionCount returns the total count of tracked sessions.
func (r *repository) SessionCount(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.memstore), nil
}

func (r *repository) updateGaugeLocked() {
	r.stats.Gauge("active_sessions").Update(float64(len(r.memstore)))
}
