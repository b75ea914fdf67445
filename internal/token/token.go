// Package token stores OAuth tokens on disk and keeps them refreshed.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
)

// Load reads an OAuth token from a JSON file.
func Load(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

// Save writes the token to path, readable only by the owner.
func Save(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

// fileSource refreshes through the config and writes new tokens back.
type fileSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	last string
}

// NewFileSource returns a token source seeded from the token file at path.
// Refreshed tokens are persisted so the next process starts with them.
func NewFileSource(ctx context.Context, cfg *oauth2.Config, path string) (oauth2.TokenSource, error) {
	tok, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("read token file (run 'calmirror auth' first): %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token file %s is empty; run 'calmirror auth' again", path)
	}
	return &fileSource{
		base: cfg.TokenSource(ctx, tok),
		path: path,
		last: tok.AccessToken,
	}, nil
}

func (s *fileSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		// A failed write only costs a refresh on the next start.
		_ = Save(s.path, tok)
		s.last = tok.AccessToken
	}
	return tok, nil
}
