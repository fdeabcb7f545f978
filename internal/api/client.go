// Package api is the HTTP client for the remote transaction backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/service"
)

// Client talks to the transaction backend with bearer auth. On a 401 it
// asks the token source for a refresh and retries exactly once; no other
// retry behavior lives here.
type Client struct {
	httpClient *http.Client
	tokens     service.TokenSource
	logger     *slog.Logger
	baseURL    string
}

// New creates a backend client.
func New(baseURL string, tokens service.TokenSource, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: api base URL", common.ErrMissingConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		tokens:  tokens,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// CreateTransaction creates one transaction remotely.
func (c *Client) CreateTransaction(ctx context.Context, payload model.TransactionPayload) (*model.Transaction, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction payload: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v1/transactions", body)
	if err != nil {
		return nil, err
	}

	var txn model.Transaction
	if err := json.Unmarshal(respBody, &txn); err != nil {
		return nil, fmt.Errorf("failed to parse created transaction: %w", err)
	}
	return &txn, nil
}

// ListTransactions fetches the caller's transactions.
func (c *Client) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/v1/transactions", nil)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	if err := json.Unmarshal(respBody, &transactions); err != nil {
		return nil, fmt.Errorf("failed to parse transaction list: %w", err)
	}
	return transactions, nil
}

// do issues one authenticated request, refreshing the token and retrying
// once on 401.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrNoToken, err)
	}

	respBody, status, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Debug("token rejected, refreshing once", "path", path)
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: refresh failed: %v", common.ErrUnauthorized, err)
		}
		respBody, status, err = c.send(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
	}

	if status == http.StatusUnauthorized {
		return nil, common.ErrUnauthorized
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("backend error (status %d): %s", status, truncate(respBody))
	}
	return respBody, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
