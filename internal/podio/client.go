// Package podio talks to the Podio REST API: token management, item reads,
// revision diffs, comments and webhook verification.
package podio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the Podio API root.
const DefaultBaseURL = "https://api.podio.com"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// Tokens supplies and refreshes access tokens.
type Tokens interface {
	Token(ctx context.Context) (Credential, error)
	Refresh(ctx context.Context, rejected string) (Credential, error)
}

// Client wraps authenticated GET/POST calls to Podio.
type Client struct {
	baseURL    string
	tokens     Tokens
	httpClient *http.Client
}

// NewClient creates a client. An empty baseURL selects DefaultBaseURL and a
// nil httpClient gets a 10 second timeout.
func NewClient(baseURL string, tokens Tokens, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// Get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs an authenticated JSON POST and decodes the response into out.
// out may be nil.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload, out)
}

// do sends the request once, and once more after a token refresh if the
// first attempt is unauthorized. A second 401 is an AuthError.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	cred, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, method, path, payload, cred.AccessToken)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		discard(resp)
		log.Debug().Str("method", method).Str("path", path).Msg("Podio rejected token, refreshing")

		cred, err = c.tokens.Refresh(ctx, cred.AccessToken)
		if err != nil {
			return err
		}

		resp, err = c.send(ctx, method, path, payload, cred.AccessToken)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			statusErr := readStatusError(method, path, resp)
			return &AuthError{Op: method + " " + path, Err: statusErr}
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth2 "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("podio %s %s: %w", method, path, err)
	}
	return resp, nil
}

func readStatusError(method, path string, resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

// GetItem fetches an item with all its fields.
func (c *Client) GetItem(ctx context.Context, itemID int64) (*Item, error) {
	path := fmt.Sprintf("/item/%d", itemID)
	var item Item
	if err := c.Get(ctx, path, &item); err != nil {
		return nil, fetchError(path, err)
	}
	return &item, nil
}

// GetRevisionDiff returns the field changes between two revisions of an item.
func (c *Client) GetRevisionDiff(ctx context.Context, itemID, from, to int64) ([]FieldDiff, error) {
	path := fmt.Sprintf("/item/%d/revision/%d/%d", itemID, from, to)
	var diff []FieldDiff
	if err := c.Get(ctx, path, &diff); err != nil {
		return nil, fetchError(path, err)
	}
	return diff, nil
}

// PostComment adds a comment to an item.
func (c *Client) PostComment(ctx context.Context, itemID int64, text string) (*Comment, error) {
	path := fmt.Sprintf("/comment/item/%d", itemID)
	var comment Comment
	if err := c.Post(ctx, path, map[string]string{"value": text}, &comment); err != nil {
		return nil, &CommentPostError{ItemID: itemID, Err: err}
	}
	return &comment, nil
}

// ValidateHook completes the webhook verification handshake.
func (c *Client) ValidateHook(ctx context.Context, hookID int64, code string) error {
	path := fmt.Sprintf("/hook/%d/verify/validate", hookID)
	return c.Post(ctx, path, map[string]string{"code": code}, nil)
}

// fetchError keeps auth failures distinguishable from read failures.
func fetchError(path string, err error) error {
	if IsAuthError(err) {
		return err
	}
	return &FetchError{Path: path, Err: err}
}
