package ragapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Asker is the single operation the session layer needs from the RAG service.
type Asker interface {
	Ask(ctx context.Context, query string) (*AskResponse, error)
}

// Client calls the RAG service. It keeps no state between calls besides its
// configuration, and makes exactly one attempt per call.
type Client struct {
	config     Config
	httpClient *http.Client
	validate   *validator.Validate
	tracer     trace.Tracer
}

// Ensure Client implements Asker
var _ Asker = &Client{}

type Option func(*Client)

// WithHTTPClient swaps the transport. The per-call timeout still applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient fills zero fields of cfg from DefaultConfig.
func NewClient(cfg Config, opts ...Option) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		config:     cfg,
		httpClient: &http.Client{},
		validate:   validator.New(),
		tracer:     otel.Tracer("textbook-chat-be/pkg/ragapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Config() Config {
	return c.config
}

// Ask sends a question to POST /ask. Any failure is returned as *ChatError.
func (c *Client) Ask(ctx context.Context, query string) (*AskResponse, error) {
	ctx, span := c.tracer.Start(ctx, "ragapi.Ask")
	defer span.End()

	req := AskRequest{Query: strings.TrimSpace(query)}
	if chatErr := c.validateRequest(req); chatErr != nil {
		recordFailure(span, chatErr)
		return nil, chatErr
	}
	span.SetAttributes(attribute.Int("ragapi.query_length", utf8.RuneCountInString(req.Query)))

	payload, err := json.Marshal(req)
	if err != nil {
		chatErr := NewChatError(CodeNetworkError, MsgNetworkError, req.Query)
		recordFailure(span, chatErr)
		return nil, chatErr
	}

	var resp AskResponse
	if chatErr := c.do(ctx, http.MethodPost, "/ask", payload, &resp, req.Query); chatErr != nil {
		recordFailure(span, chatErr)
		return nil, chatErr
	}

	span.SetAttributes(
		attribute.Int("ragapi.sources", len(resp.Sources)),
		attribute.Int("ragapi.matched_chunks", len(resp.MatchedChunks)),
	)
	return &resp, nil
}

// Health calls GET /health on the RAG service.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, span := c.tracer.Start(ctx, "ragapi.Health")
	defer span.End()

	var status HealthStatus
	if chatErr := c.do(ctx, http.MethodGet, "/health", nil, &status, ""); chatErr != nil {
		recordFailure(span, chatErr)
		return nil, chatErr
	}
	return &status, nil
}

func (c *Client) validateRequest(req AskRequest) *ChatError {
	err := c.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Tag() == "max" {
				msg := fmt.Sprintf(MsgQueryTooLong, utf8.RuneCountInString(req.Query), MaxQueryLength)
				return NewChatError(CodeInvalidInput, msg, "")
			}
		}
	}
	return NewChatError(CodeInvalidInput, MsgEmptyQuery, "")
}

// do performs one bounded request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}, query string) *ChatError {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return NewChatError(CodeNetworkError, MsgNetworkError, query)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err, query)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errorForStatus(resp.StatusCode, query)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportError(err, query)
	}
	return nil
}

func transportError(err error, query string) *ChatError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewChatError(CodeTimeout, MsgTimeout, query)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewChatError(CodeTimeout, MsgTimeout, query)
	}
	return NewChatError(CodeNetworkError, MsgNetworkError, query)
}

func recordFailure(span trace.Span, chatErr *ChatError) {
	span.SetAttributes(
		attribute.String("ragapi.error_code", string(chatErr.Code)),
		attribute.Bool("ragapi.retryable", chatErr.Retryable),
	)
	span.SetStatus(otelcodes.Error, chatErr.Message)
}
