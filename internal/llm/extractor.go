package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kosha-fin/kosha/internal/common"
	"github.com/kosha-fin/kosha/internal/model"
	"github.com/kosha-fin/kosha/internal/service"
)

// Extractor implements service.Classifier using an LLM provider.
type Extractor struct {
	client      Client
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// Config holds configuration for the LLM extractor.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	MaxRetries  int
	RetryDelay  time.Duration
	RateLimit   int
	Temperature float64
	MaxTokens   int
}

// NewExtractor creates a new LLM-backed extractor.
func NewExtractor(cfg Config, logger *slog.Logger) (*Extractor, error) {
	var client Client
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		client, err = newOpenAIClient(cfg)
	case "anthropic":
		client, err = newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Extractor{
		client:      client,
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}, nil
}

// NewExtractorWithClient builds an extractor over an existing client.
// Used by tests and by callers that manage provider construction.
func NewExtractorWithClient(client Client, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:      client,
		logger:      logger,
		retryOpts:   service.RetryOptions{MaxAttempts: 1},
		rateLimiter: newRateLimiter(0),
	}
}

// Extract classifies a raw message into a transaction candidate. It returns
// common.ErrNotTransaction when the model judges the message to not be a
// bank transaction alert; that signal is terminal and never retried.
func (e *Extractor) Extract(ctx context.Context, msg model.RawMessage) (*model.Candidate, error) {
	if err := e.rateLimiter.wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	prompt := buildExtractionPrompt(msg)

	var candidate *model.Candidate
	err := common.WithRetry(ctx, func() error {
		content, err := e.client.Complete(ctx, extractionSystemPrompt, prompt)
		if err != nil {
			e.logger.Warn("extraction attempt failed",
				"sender", msg.Sender,
				"error", err)
			return &common.RetryableError{Err: err, Retryable: true}
		}

		parsed, parseErr := parseExtraction(content, msg)
		if parseErr != nil {
			if errors.Is(parseErr, common.ErrNotTransaction) {
				// Definitive negative; do not burn retries on it.
				return &common.RetryableError{Err: parseErr, Retryable: false}
			}
			e.logger.Warn("malformed extraction response",
				"sender", msg.Sender,
				"error", parseErr)
			return &common.RetryableError{Err: parseErr, Retryable: true}
		}

		candidate = parsed
		return nil
	}, e.retryOpts)

	if err != nil {
		if errors.Is(err, common.ErrNotTransaction) {
			return nil, common.ErrNotTransaction
		}
		return nil, fmt.Errorf("%w: %v", common.ErrExtractionFailed, err)
	}

	e.logger.Debug("message extracted",
		"sender", msg.Sender,
		"amount", candidate.Amount,
		"category", candidate.Category,
		"confidence", candidate.Confidence)

	return candidate, nil
}

// Close stops background goroutines and cleans up resources.
func (e *Extractor) Close() error {
	if e.rateLimiter != nil {
		e.rateLimiter.Close()
	}
	return nil
}

const extractionSystemPrompt = "You are a bank SMS parser. Respond only in the exact line format requested, with no extra commentary."

// buildExtractionPrompt creates the prompt for SMS transaction extraction.
func buildExtractionPrompt(msg model.RawMessage) string {
	categoryList := ""
	for _, cat := range model.AllCategories() {
		categoryList += fmt.Sprintf("- %s\n", cat)
	}

	return fmt.Sprintf(`Decide whether this SMS describes a completed bank transaction (a debit or credit on the recipient's account). Promotional messages, OTPs, balance updates, and payment reminders are NOT transactions.

Sender: %s
Received: %s
Message: %s

Categories:
%s
If it is NOT a transaction, respond with exactly:
TRANSACTION: no

If it IS a transaction, respond with:
TRANSACTION: yes
AMOUNT: <number, no currency symbol>
NAME: <merchant or payer name>
CATEGORY: <one category from the list>
DIRECTION: <debit|credit>
PAYMENT_METHOD: <UPI|card|netbanking|cash|other, omit if unknown>
REFERENCE: <transaction reference id, omit if none>
DATE: <YYYY-MM-DD, omit if not stated>
INSTITUTION: <bank name, omit if unknown>
CONFIDENCE: <0.0-1.0, how sure you are of the category>`,
		msg.Sender,
		msg.ReceivedAt.Format("2006-01-02 15:04"),
		msg.Body,
		categoryList)
}
