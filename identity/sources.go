package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Static is the value the server injected into the rendered page as a global.
// It is the most trustworthy source and always consulted first.
type Static struct {
	Value string
	// Token optionally carries a bearer credential injected alongside.
	Token string
}

func (Static) Name() string { return "static" }

func (s Static) Lookup(context.Context) (Credential, error) {
	return Credential{UserID: strings.TrimSpace(s.Value), Token: s.Token}, nil
}

// userIDAttr is the attribute the server sets on the rendered document body.
const userIDAttr = "data-user-id"

// Document reads the identity attribute the server embedded in the rendered
// page at render time.
type Document struct {
	Attrs map[string]string
}

func (Document) Name() string { return "document" }

func (d Document) Lookup(context.Context) (Credential, error) {
	return Credential{UserID: strings.TrimSpace(d.Attrs[userIDAttr])}, nil
}

// Stored adapts a CredentialStore into a Source. When the persisted record
// carries only a bearer token, the token's subject claim supplies the user
// id; the claim is read without signature verification since the client does
// not hold the signing key and the server re-verifies on every request.
type Stored struct {
	Store CredentialStore
}

func (Stored) Name() string { return "credential-store" }

func (s Stored) Lookup(ctx context.Context) (Credential, error) {
	cred, err := s.Store.Load(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	cred.UserID = strings.TrimSpace(cred.UserID)
	if cred.UserID == "" && cred.Token != "" {
		cred.UserID = tokenSubject(cred.Token)
	}
	return cred, nil
}

func tokenSubject(token string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(sub)
}
