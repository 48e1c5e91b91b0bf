// Package gemini wraps the Gemini generative API for single-prompt text generation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model answers without any text
var ErrEmptyResponse = errors.New("model returned no text")

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 10 * time.Second
)

// contentGenerator is the part of genai.Models used by Client
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures a Client
type Config struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client generates text from a prompt with a fixed model.
type Client struct {
	models     contentGenerator
	model      string
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// NewClient creates a client for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	logger.Info("gemini client initialized", slog.String("model", cfg.Model))

	return newClient(client.Models, cfg, logger), nil
}

func newClient(models contentGenerator, cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		models:     models,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt as a single user turn and returns the response text.
// Failed calls are retried with exponential backoff up to the configured limit.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.4)),
	}

	var (
		resp   *genai.GenerateContentResponse
		apiErr error
	)
	start := time.Now()

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, apiErr = c.models.GenerateContent(ctx, c.model, contents, config)
		if apiErr == nil {
			break
		}
		if attempt == c.maxRetries {
			break
		}

		backoff := initialBackoff << uint(attempt)
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		c.logger.Warn("gemini call failed, retrying",
			slog.Any("error", apiErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	if apiErr != nil {
		return "", fmt.Errorf("failed to generate content (model: %s): %w", c.model, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("gemini generation complete",
		slog.String("model", c.model),
		slog.Int("prompt_chars", len(prompt)),
		slog.Int("response_chars", len(text)),
		slog.Duration("duration", time.Since(start)),
	)

	return text, nil
}
