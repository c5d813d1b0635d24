// Package toggle reconciles optimistic boolean UI state (likes, saves,
// follows) with the backend: the flip and its count delta render immediately,
// then commit or roll back as one unit when the server answers.
package toggle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/connectedapp/connected-client/api"
)

// A Resource is any entity with a binary user-specific state plus an optional
// aggregate count. The boolean and the count always change together; one is
// never rendered without the other.
type Resource struct {
	// ID keys in-flight serialization, e.g. "post:42:like" or "user:7:follow".
	ID    string
	State bool
	Count int
	// Counted reports whether Count is meaningful for this resource
	// (follows have no rendered count on the suggestion list).
	Counted bool
}

// An Action issues the server call that turns the resource on or off.
type Action func(ctx context.Context, enable bool) (api.ToggleResult, error)

// A CredentialInvalidator discards a credential the backend has rejected.
type CredentialInvalidator interface {
	Invalidate(ctx context.Context)
}

// Controller applies toggles optimistically and serializes them per resource:
// a second toggle for a resource with one already in flight is a no-op until
// the first settles, so out-of-order responses cannot oscillate the state.
// Toggles on different resources are fully independent.
type Controller struct {
	Logger *slog.Logger
	// Resolver is optional; when set, an auth failure invalidates the
	// cached credential.
	Resolver CredentialInvalidator

	mu       sync.Mutex
	inflight map[string]bool
}

// Toggle flips res, calls act with the desired state, and returns the state
// the UI should show. On failure both the boolean and the count are restored
// to their exact pre-toggle values and the error is returned for the caller
// to surface.
func (c *Controller) Toggle(ctx context.Context, res *Resource, act Action) (bool, error) {
	c.mu.Lock()
	if c.inflight == nil {
		c.inflight = make(map[string]bool)
	}
	if c.inflight[res.ID] {
		c.mu.Unlock()
		c.logger().Info("Toggle already in flight", "resource", res.ID)
		return res.State, &api.Error{Kind: api.KindStateConflict, Op: "toggle " + res.ID, Err: errors.New("request in flight")}
	}
	c.inflight[res.ID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, res.ID)
		c.mu.Unlock()
	}()

	prevState, prevCount := res.State, res.Count
	enable := !prevState

	// Optimistic apply: boolean and count flip together, before the
	// request is issued.
	res.State = enable
	if res.Counted {
		if enable {
			res.Count = prevCount + 1
		} else if prevCount > 0 {
			res.Count = prevCount - 1
		}
	}

	result, err := act(ctx, enable)
	if err == nil && !result.Success {
		err = &api.Error{Kind: api.KindLoad, Op: "toggle " + res.ID, Err: errors.New(orUnknown(result.Message))}
	}
	if err != nil {
		res.State = prevState
		res.Count = prevCount
		if api.IsAuthRequired(err) && c.Resolver != nil {
			c.Resolver.Invalidate(ctx)
		}
		c.logger().Error("Toggle rolled back", "resource", res.ID, "error", err.Error())
		return prevState, err
	}

	// The server count is authoritative when it reports one.
	if res.Counted && result.LikesCount != nil {
		res.Count = *result.LikesCount
	}
	return res.State, nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "operation failed"
	}
	return msg
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
