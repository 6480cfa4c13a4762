package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/oauth2"
)

// Token is a stored OAuth token together with the scopes it was granted for.
type Token struct {
	*oauth2.Token
	Scopes []string `json:"scopes,omitempty"`
}

// Missing returns the scopes in want that the token was not granted. A token
// saved without a scope list is taken to cover every scope.
func (t *Token) Missing(want []string) []string {
	if len(t.Scopes) == 0 {
		return nil
	}
	var missing []string
	for _, s := range want {
		if !slices.Contains(t.Scopes, s) {
			missing = append(missing, s)
		}
	}
	return missing
}

// LoadToken reads the token stored at path. It returns ErrNoToken when
// nothing is stored there.
func LoadToken(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	tok := &Token{Token: new(oauth2.Token)}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("invalid token file %s: no access or refresh token", path)
	}
	return tok, nil
}

// SaveToken writes tok to path with owner-only permissions, replacing any
// previous token atomically.
func SaveToken(path string, tok *Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

// RemoveToken deletes the token stored at path, if any.
func RemoveToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}
