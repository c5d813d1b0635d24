// Package identity resolves the authenticated user for a page session from
// the several storage mechanisms the surrounding application has accumulated,
// behind one contract with an explicit precedence order.
package identity

import (
	"context"
	"errors"
)

// Identity is the resolved authenticated user. It is immutable for the life
// of a page session.
type Identity struct {
	UserID int64
	// Token is the bearer credential, when one was available from the
	// winning source. It may be empty for server-rendered sources.
	Token string
}

// ErrUnauthenticated means no source produced a usable identity. Callers must
// not perform authenticated fetches in this state and should present a log-in
// affordance, never a loading or error state.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// A Credential is the raw, unnormalized material one source can offer.
// UserID is kept as a string until the resolver normalizes it.
type Credential struct {
	UserID string
	Token  string
}

// Empty reports whether the credential offers nothing at all.
func (c Credential) Empty() bool { return c.UserID == "" && c.Token == "" }

// A Source is one identity storage mechanism. Sources that currently hold
// nothing return an empty Credential and no error.
type Source interface {
	Name() string
	Lookup(ctx context.Context) (Credential, error)
}

// A CredentialStore persists a credential across page sessions. It is the
// least trustworthy source and the only mutable one: the resolver clears it
// when the backend rejects its credential.
type CredentialStore interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, c Credential) error
	Clear(ctx context.Context) error
}
