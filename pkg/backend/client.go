package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/flowbot/pkg/models"
	"github.com/go-playground/validator/v10"
)

// CredentialSource yields the bearer credential at request time.
type CredentialSource interface {
	Get(ctx context.Context) (credential string, ok bool, err error)
}

// Paths are the backend routes, relative to the base URL.
type Paths struct {
	Flows     string
	Templates string
	Send      string
}

func DefaultPaths() Paths {
	return Paths{
		Flows:     "/flows",
		Templates: "/templates",
		Send:      "/messages/send",
	}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithPaths(paths Paths) Option {
	return func(c *Client) {
		c.paths = paths
	}
}

// Client talks to the backend REST API with the current credential.
type Client struct {
	baseURL     string
	paths       Paths
	httpClient  *http.Client
	credentials CredentialSource
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewClient(baseURL string, credentials CredentialSource, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		paths:       DefaultPaths(),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		credentials: credentials,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "backend"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Msg     string          `json:"msg"`
}

// activeFlow is the part of a fetched flow the engine reads. Blank keywords and
// half-drawn edges are left to the matcher and flow.ValidateFlow.
type activeFlow struct {
	ID          string             `validate:"required"`
	TriggerType models.TriggerType `validate:"required,oneof=keyword exact"`
	Keywords    []string           `validate:"required_if=TriggerType keyword"`
	ExactMatch  string             `validate:"required_if=TriggerType exact"`
	Nodes       []models.FlowNode  `validate:"dive"`
}

func newActiveFlow(f models.Flow) activeFlow {
	return activeFlow{
		ID:          f.ID,
		TriggerType: f.TriggerType,
		Keywords:    f.Keywords,
		ExactMatch:  f.ExactMatch,
		Nodes:       f.Nodes,
	}
}

// FetchFlows returns the user's flows. Flows that fail to decode, or active flows
// without a usable trigger, are skipped and logged rather than failing the whole fetch.
func (c *Client) FetchFlows(ctx context.Context) ([]models.Flow, error) {
	const op = "FetchFlows"

	var raw []json.RawMessage
	if err := c.fetch(ctx, op, c.paths.Flows, &raw); err != nil {
		return nil, err
	}

	flows := make([]models.Flow, 0, len(raw))

	for i, item := range raw {
		var f models.Flow
		if err := json.Unmarshal(item, &f); err != nil {
			c.logger.WarnContext(ctx, "Skipping undecodable flow", "index", i, "error", err)

			continue
		}

		if f.IsActive {
			if err := c.validate.Struct(newActiveFlow(f)); err != nil {
				c.logger.WarnContext(ctx, "Skipping invalid flow", "flow_id", f.ID, "error", err)

				continue
			}
		}

		flows = append(flows, f)
	}

	return flows, nil
}

// FetchTemplates returns the user's message templates.
func (c *Client) FetchTemplates(ctx context.Context) ([]models.Template, error) {
	const op = "FetchTemplates"

	var templates []models.Template
	if err := c.fetch(ctx, op, c.paths.Templates, &templates); err != nil {
		return nil, err
	}

	return templates, nil
}

type sendRequest struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// SendMessage posts one outbound message. Media messages carry their URL as the message.
func (c *Client) SendMessage(ctx context.Context, chatID string, msg models.OutboundMessage) error {
	body := sendRequest{ChatID: chatID, Message: msg.Body.Text, Type: string(msg.Type)}
	if msg.Body.MediaURL != "" {
		body.Message = msg.Body.MediaURL
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.paths.Send, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope

	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if err := statusError(resp.StatusCode); err != nil {
		return fmt.Errorf("send to %s failed with status %d: %w", chatID, resp.StatusCode, err)
	}

	if decodeErr != nil {
		return fmt.Errorf("failed to decode send response: %w", decodeErr)
	}

	if !env.Success {
		return fmt.Errorf("send to %s: %w: %s", chatID, ErrUnsuccessful, env.Msg)
	}

	return nil
}

func (c *Client) fetch(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var env envelope

	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if err := statusError(resp.StatusCode); err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Message: env.Msg, Err: err}
	}

	if decodeErr != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}

	if !env.Success {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Message: env.Msg, Err: ErrUnsuccessful}
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return &FetchError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode data: %w", err)}
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	credential, ok, err := c.credentials.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}

	if !ok {
		return nil, ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}

		return nil, &transientError{err: err}
	}

	return resp, nil
}

func statusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &transientError{err: fmt.Errorf("%w: %s", ErrUnsuccessful, http.StatusText(status))}
	default:
		return fmt.Errorf("%w: %s", ErrUnsuccessful, http.StatusText(status))
	}
}
