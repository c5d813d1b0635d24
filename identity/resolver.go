package identity

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// Resolver produces the session identity from an ordered list of sources.
// The first source yielding a non-empty, numeric user id wins; a source
// holding a malformed value is skipped, not fatal. The result is cached until
// Invalidate.
type Resolver struct {
	Logger *slog.Logger

	sources []Source
	store   CredentialStore

	mu sync.Mutex
	id *Identity
}

// NewResolver builds a resolver over sources in precedence order. The store,
// when non-nil, is cleared on Invalidate; pass the same store that backs any
// Stored source so a rejected credential cannot be resolved again.
func NewResolver(logger *slog.Logger, store CredentialStore, sources ...Source) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Logger: logger, sources: sources, store: store}
}

// Resolve returns the session identity, or ErrUnauthenticated when every
// source is empty.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != nil {
		return *r.id, nil
	}

	for _, src := range r.sources {
		cred, err := src.Lookup(ctx)
		if err != nil {
			// A broken source falls through to the next one.
			r.Logger.Warn("Identity source failed", "source", src.Name(), "error", err.Error())
			continue
		}
		if cred.UserID == "" {
			continue
		}
		userID, err := strconv.ParseInt(cred.UserID, 10, 64)
		if err != nil {
			r.Logger.Warn("Identity source holds a non-numeric id", "source", src.Name(), "value", cred.UserID)
			continue
		}
		id := Identity{UserID: userID, Token: cred.Token}
		r.id = &id
		r.Logger.Info("Identity resolved", "source", src.Name(), "user_id", userID)
		return id, nil
	}

	return Identity{}, ErrUnauthenticated
}

// Invalidate drops the cached identity and erases the persisted credential so
// a later Resolve cannot reuse a credential the backend has rejected.
func (r *Resolver) Invalidate(ctx context.Context) {
	r.mu.Lock()
	r.id = nil
	store := r.store
	r.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.Clear(ctx); err != nil {
		r.Logger.Error("Could not clear persisted credential", "error", err.Error())
	}
}
