// Package token resolves bearer tokens for the transaction backend. The
// headless invocation has no in-memory session, so tokens live in a JSON
// file and are refreshed through the backend's OAuth endpoint on demand.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/kosha-fin/kosha/internal/common"
)

// Static is an in-memory token source for the foreground session.
type Static struct {
	Value string
}

// Token returns the fixed token.
func (s *Static) Token(_ context.Context) (string, error) {
	if s.Value == "" {
		return "", common.ErrNoToken
	}
	return s.Value, nil
}

// Refresh cannot mint a new token for a static source.
func (s *Static) Refresh(ctx context.Context) (string, error) {
	return s.Token(ctx)
}

// FileSource is a durable token source: an oauth2 token persisted as JSON,
// refreshed through the configured endpoint when expired and written back
// so later invocations see the new token.
type FileSource struct {
	conf *oauth2.Config
	path string
	mu   sync.Mutex
}

// NewFileSource creates a file-backed token source. tokenURL is the
// backend's refresh endpoint; clientID identifies this app to it.
func NewFileSource(path, tokenURL, clientID string) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: token file path", common.ErrMissingConfig)
	}
	if tokenURL == "" {
		return nil, fmt.Errorf("%w: token refresh URL", common.ErrMissingConfig)
	}
	return &FileSource{
		path: path,
		conf: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
	}, nil
}

// Token returns a valid access token, refreshing through the oauth2
// endpoint if the stored one has expired.
func (f *FileSource) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := f.load()
	if err != nil {
		return "", err
	}

	// TokenSource refreshes only when the stored token is expired.
	current, err := f.conf.TokenSource(ctx, stored).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrNoToken, err)
	}

	if current.AccessToken != stored.AccessToken {
		if err := f.save(current); err != nil {
			return "", err
		}
	}
	return current.AccessToken, nil
}

// Refresh forces a refresh regardless of expiry and persists the result.
func (f *FileSource) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, err := f.load()
	if err != nil {
		return "", err
	}
	if stored.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token stored", common.ErrNoToken)
	}

	// Expire the access token so TokenSource is forced through the
	// refresh flow.
	expired := *stored
	expired.AccessToken = ""
	expired.Expiry = expiredTime()

	fresh, err := f.conf.TokenSource(ctx, &expired).Token()
	if err != nil {
		return "", fmt.Errorf("%w: refresh failed: %v", common.ErrUnauthorized, err)
	}
	if err := f.save(fresh); err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// Store persists a token obtained elsewhere (e.g. an interactive login).
func (f *FileSource) Store(tok *oauth2.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(tok)
}

func expiredTime() time.Time {
	return time.Now().Add(-time.Hour)
}

func (f *FileSource) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: token file %s missing", common.ErrNoToken, f.path)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &tok, nil
}

func (f *FileSource) save(tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
