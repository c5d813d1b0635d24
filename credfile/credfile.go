// Package credfile persists the session credential as a small JSON file,
// the client-side analogue of the browser's localStorage entry.
package credfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/connectedapp/connected-client/identity"
)

// Store reads and writes one credential record at Path.
type Store struct {
	Path string
}

type record struct {
	UserID string `json:"user_id,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Load returns the persisted credential. A missing file is an empty
// credential, not an error.
func (s *Store) Load(context.Context) (identity.Credential, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return identity.Credential{}, nil
	}
	if err != nil {
		return identity.Credential{}, fmt.Errorf("read credential file: %w", err)
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return identity.Credential{}, fmt.Errorf("decode credential file: %w", err)
	}
	return identity.Credential{UserID: rec.UserID, Token: rec.Token}, nil
}

// Save writes the credential, creating parent directories as needed. The file
// is user-only readable since it holds a bearer token.
func (s *Store) Save(_ context.Context, c identity.Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	b, err := json.Marshal(record{UserID: c.UserID, Token: c.Token})
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	if err := os.WriteFile(s.Path, b, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Clear removes the persisted credential. Clearing an absent file succeeds.
func (s *Store) Clear(context.Context) error {
	err := os.Remove(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
