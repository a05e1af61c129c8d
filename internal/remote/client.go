package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cleared-dev/invoicer/internal/session"
)

// ErrUnauthorized is returned when the backend rejects the session and a
// token refresh does not help.
var ErrUnauthorized = errors.New("session expired, please log in again")

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string // from the response body when present
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("HTTP %d %s", e.Status, http.StatusText(e.Status))
}

// Message returns the text to show a user for err: the server's message
// when there is one, otherwise the error text itself.
func Message(err error) string {
	var re *Error
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return err.Error()
}

// TokenStore gives the client access to the session's bearer tokens.
type TokenStore interface {
	Tokens(ctx context.Context) (session.Tokens, error)
	SaveTokens(ctx context.Context, tokens session.Tokens) error
}

// Client talks to the invoicing backend over REST+JSON.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithClock sets the clock used to check token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client for baseURL. tokens may be nil for unauthenticated
// use (sign-in only).
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messageBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// do sends a request and decodes a JSON response into out (if non-nil).
// Authenticated requests refresh an expired access token up front and
// retry once after a 401.
func (c *Client) do(ctx context.Context, method, path string, in, out any, auth bool) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	if auth {
		tokens, err := c.tokenSource().Tokens(ctx)
		if err != nil {
			return err
		}
		if session.Expired(tokens.Access, c.now()) {
			if err := c.refresh(ctx, tokens); err != nil {
				return err
			}
		}
	}

	resp, err := c.send(ctx, method, path, payload, auth)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized && auth {
		resp.Body.Close()
		c.log.Debug().Str("path", path).Msg("remote: access token rejected, refreshing")
		tokens, err := c.tokenSource().Tokens(ctx)
		if err != nil {
			return err
		}
		if err := c.refresh(ctx, tokens); err != nil {
			return err
		}
		resp, err = c.send(ctx, method, path, payload, auth)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && auth {
		return fmt.Errorf("%w: %w", ErrUnauthorized, decodeError(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, auth bool) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		tokens, err := c.tokenSource().Tokens(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tokens.Access)
	}

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Str("path", path).Msg("remote: request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", c.now().Sub(start)).
		Msg("remote: request")
	return resp, nil
}

func (c *Client) tokenSource() TokenStore {
	if c.tokens == nil {
		return noTokens{}
	}
	return c.tokens
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var mb messageBody
	if json.Unmarshal(data, &mb) == nil {
		msg := mb.Message
		if msg == "" {
			msg = mb.Error
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}
	return &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}

type noTokens struct{}

func (noTokens) Tokens(context.Context) (session.Tokens, error) {
	return session.Tokens{}, session.ErrNoSession
}

func (noTokens) SaveTokens(context.Context, session.Tokens) error {
	return session.ErrNoSession
}
