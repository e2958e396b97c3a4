// Package remote talks to the storefront REST API that owns the collections of
// signed-in shoppers.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/auth"
	"github.com/angelmondragon/storefront-collections/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
	"github.com/angelmondragon/storefront-collections/pkg/types"
)

const (
	defaultTimeout         = 10 * time.Second
	responseReadLimit int64 = 1 << 20
)

var errBaseURLRequired = errors.New("remote base url is required")

// Client issues collection calls for one collection kind.
type Client struct {
	httpClient *http.Client
	baseURL    string
	kind       enums.CollectionKind
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a client for kind rooted at baseURL.
func NewClient(baseURL string, kind enums.CollectionKind, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("invalid collection kind %q", kind)
	}

	client := &Client{
		baseURL:    trimmed,
		kind:       kind,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Changes is a partial entry update.
type Changes struct {
	Quantity *int `json:"quantity,omitempty"`
}

type addRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Add creates an entry for productID and returns it as the server stored it.
func (c *Client) Add(ctx context.Context, productID string, quantity int) (types.Item, error) {
	if strings.TrimSpace(productID) == "" {
		return types.Item{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		quantity = 1
	}

	var out wireItem
	if err := c.do(ctx, "add", http.MethodPost, c.itemsURL(""), addRequest{ProductID: productID, Quantity: quantity}, &out); err != nil {
		return types.Item{}, err
	}
	return out.toItem(), nil
}

// Remove deletes the entry with entryID.
func (c *Client) Remove(ctx context.Context, entryID string) error {
	if strings.TrimSpace(entryID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}
	return c.do(ctx, "remove", http.MethodDelete, c.itemsURL(entryID), nil, nil)
}

// Update applies changes to the entry with entryID.
func (c *Client) Update(ctx context.Context, entryID string, changes Changes) (types.Item, error) {
	if strings.TrimSpace(entryID) == "" {
		return types.Item{}, pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}

	var out wireItem
	if err := c.do(ctx, "update", http.MethodPatch, c.itemsURL(entryID), changes, &out); err != nil {
		return types.Item{}, err
	}
	return out.toItem(), nil
}

// List returns the authoritative contents of the collection.
func (c *Client) List(ctx context.Context) ([]types.Item, error) {
	var out wireList
	if err := c.do(ctx, "list", http.MethodGet, c.baseURL+c.kind.ResourcePath()+"/", nil, &out); err != nil {
		return nil, err
	}
	items := make([]types.Item, 0, len(out))
	for _, w := range out {
		items = append(items, w.toItem())
	}
	return items, nil
}

func (c *Client) itemsURL(entryID string) string {
	base := c.baseURL + c.kind.ResourcePath() + "/items"
	if entryID == "" {
		return base
	}
	return base + "/" + url.PathEscape(entryID)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, target string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "remote client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("marshal %s %s request", c.kind, op))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("build %s %s request", c.kind, op))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session := auth.SessionFromContext(ctx); session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("execute %s %s request", c.kind, op))
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read %s %s response", c.kind, op))
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(op, resp.StatusCode, env.Message)
	}
	if resp.StatusCode == http.StatusNoContent || (len(bytes.TrimSpace(raw)) == 0 && out == nil) {
		return nil
	}
	if decodeErr != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, decodeErr, fmt.Sprintf("decode %s %s response", c.kind, op))
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("%s %s rejected", c.kind, op)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s %s data", c.kind, op))
	}
	return nil
}

func (c *Client) statusError(op string, status int, message string) error {
	code := pkgerrors.CodeDependency
	switch status {
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		code = pkgerrors.CodeUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = pkgerrors.CodeValidation
	}
	if message == "" {
		message = fmt.Sprintf("%s %s failed with status %d", c.kind, op, status)
	}
	return pkgerrors.New(code, message).WithDetails(map[string]any{"status": status, "op": op})
}
