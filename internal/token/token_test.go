package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/kosha-fin/kosha/internal/common"
)

func TestStaticToken(t *testing.T) {
	src := &Static{Value: "session-abc"}

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-abc", tok)
}

func TestStaticTokenEmpty(t *testing.T) {
	src := &Static{}

	_, err := src.Token(context.Background())
	assert.ErrorIs(t, err, common.ErrNoToken)
}

func newRefreshServer(t *testing.T, accessToken string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"token_type":    "Bearer",
			"refresh_token": "rotated-refresh",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func writeTokenFile(t *testing.T, path string, tok *oauth2.Token) {
	t.Helper()
	data, err := json.Marshal(tok)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
}

func TestFileSourceValidTokenSkipsRefresh(t *testing.T) {
	server, calls := newRefreshServer(t, "unused")
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{
		AccessToken:  "still-good",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	})

	src, err := NewFileSource(path, server.URL, "kosha")
	require.NoError(t, err)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "still-good", tok)
	assert.Equal(t, 0, *calls)
}

func TestFileSourceRefreshesExpiredToken(t *testing.T) {
	server, calls := newRefreshServer(t, "minted-1")
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	})

	src, err := NewFileSource(path, server.URL, "kosha")
	require.NoError(t, err)

	tok, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minted-1", tok)
	assert.Equal(t, 1, *calls)

	// Refreshed token must be persisted for later invocations.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored oauth2.Token
	require.NoError(t, json.Unmarshal(data, &stored))
	assert.Equal(t, "minted-1", stored.AccessToken)
}

func TestFileSourceForcedRefresh(t *testing.T) {
	server, calls := newRefreshServer(t, "minted-2")
	path := filepath.Join(t.TempDir(), "token.json")
	writeTokenFile(t, path, &oauth2.Token{
		AccessToken:  "still-good",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	})

	src, err := NewFileSource(path, server.URL, "kosha")
	require.NoError(t, err)

	tok, err := src.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minted-2", tok)
	assert.Equal(t, 1, *calls)
}

func TestFileSourceMissingFile(t *testing.T) {
	server, _ := newRefreshServer(t, "unused")
	path := filepath.Join(t.TempDir(), "token.json")

	src, err := NewFileSource(path, server.URL, "kosha")
	require.NoError(t, err)

	_, err = src.Token(context.Background())
	assert.ErrorIs(t, err, common.ErrNoToken)
}

func TestNewFileSourceValidation(t *testing.T) {
	_, err := NewFileSource("", "http://example.com/token", "kosha")
	assert.ErrorIs(t, err, common.ErrMissingConfig)

	_, err = NewFileSource("/tmp/token.json", "", "kosha")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
