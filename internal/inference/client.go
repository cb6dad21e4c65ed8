// Package inference talks to a locally hosted, OpenAI-compatible model
// server and hides transport concerns from the rest of the application.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrUnavailable: the server cannot be reached or timed out. Transient,
	// retried with backoff before it surfaces.
	ErrUnavailable = errors.New("inference server unavailable")
	// ErrModel: the server itself reported a failure. Not retried.
	ErrModel = errors.New("inference server reported an error")
	// ErrInvalidResponse: the reply was not a well-formed completion
	// envelope. Not retried.
	ErrInvalidResponse = errors.New("invalid inference response")
)

// backoffSchedule bounds retries on ErrUnavailable: two retries, growing
// delays.
var backoffSchedule = []time.Duration{250 * time.Millisecond, 750 * time.Millisecond}

type Turn struct {
	Role    string
	Content string
}

type Reply struct {
	Text           string
	TokensUsed     int
	ProcessingTime time.Duration
}

// Client is stateless apart from configuration and safe for concurrent use.
type Client struct {
	api          *openai.Client
	endpoint     string
	defaultModel string
	timeout      time.Duration
	temperature  float32
	maxTokens    int
	httpClient   *http.Client
	logger       *zap.Logger
}

type Options struct {
	// Endpoint is the server base URL, e.g. http://localhost:21002. The
	// chat completion path /v1/chat/completions hangs off it.
	Endpoint string
	Model    string
	Timeout  time.Duration
	// Temperature and MaxTokens apply to every request; zero values defer
	// to the server's own defaults.
	Temperature float32
	MaxTokens   int
	Logger      *zap.Logger
}

func NewClient(opts Options) *Client {
	endpoint := strings.TrimRight(opts.Endpoint, "/")

	cfg := openai.DefaultConfig("")
	cfg.BaseURL = endpoint + "/v1"

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		api:          openai.NewClientWithConfig(cfg),
		endpoint:     endpoint,
		defaultModel: opts.Model,
		timeout:      timeout,
		temperature:  opts.Temperature,
		maxTokens:    opts.MaxTokens,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		logger:       logger,
	}
}

// Chat sends the ordered turns to the model and returns its reply. model
// overrides the configured default when non-empty. Transient transport
// failures are retried per the backoff schedule; model-reported errors and
// malformed envelopes are not.
func (c *Client) Chat(ctx context.Context, model string, turns []Turn) (*Reply, error) {
	if model == "" {
		model = c.defaultModel
	}

	var lastErr error
	for attempt := 0; attempt <= len(backoffSchedule); attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying inference request",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffSchedule[attempt-1]):
			}
		}

		reply, err := c.completeOnce(ctx, model, turns)
		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (c *Client) completeOnce(ctx context.Context, model string, turns []Turn) (*Reply, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	elapsed := time.Since(started)

	if err != nil {
		return nil, c.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", ErrInvalidResponse)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion text", ErrInvalidResponse)
	}

	return &Reply{
		Text:           text,
		TokensUsed:     resp.Usage.TotalTokens,
		ProcessingTime: elapsed,
	}, nil
}

// classify maps SDK and transport errors onto the client's taxonomy.
func (c *Client) classify(ctx context.Context, err error) error {
	// Caller cancellation is not a server failure; propagate as-is.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s", ErrModel, apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d", ErrModel, reqErr.HTTPStatusCode)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	// Request-scoped timeout or any transport-level failure: the server is
	// unreachable for our purposes.
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Healthy probes the server's readiness endpoint. The server may legitimately
// be loading a model at startup, so callers poll rather than fail hard.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
