package cli

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

	"yieldgotchi/internal/guardian"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 for transport errors.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

type Outcome struct {
	Result  guardian.Result `json:"result"`
	Account *guardian.View  `json:"account,omitempty"`
}

type CatalogStage struct {
	Stage guardian.Stage `json:"stage"`
	Min   float64        `json:"min"`
	Max   *float64       `json:"max"`
}

type CatalogResponse struct {
	Items           guardian.Catalog        `json:"items"`
	RarityWeights   map[guardian.Rarity]int `json:"rarity_weights"`
	UnlockThreshold float64                 `json:"unlock_threshold"`
	Stages          []CatalogStage          `json:"stages"`
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/healthz", "", nil, nil, "")
}

func (c *Client) Account(ctx context.Context, owner string) (guardian.View, error) {
	var out guardian.View
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/guardian", owner, nil, &out, "")
	return out, err
}

func (c *Client) Mint(ctx context.Context, owner, name, idem string) (Outcome, error) {
	var out Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/guardian", owner, map[string]any{
		"name": name,
	}, &out, idem)
	return out, err
}

func (c *Client) Deposit(ctx context.Context, owner string, amount float64, idem string) (Outcome, error) {
	var out Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/vault/deposit", owner, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Withdraw(ctx context.Context, owner string, amount float64, idem string) (Outcome, error) {
	var out Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/vault/withdraw", owner, map[string]any{
		"amount": amount,
	}, &out, idem)
	return out, err
}

func (c *Client) Claim(ctx context.Context, owner, idem string) (Outcome, error) {
	var out Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/vault/claim", owner, nil, &out, idem)
	return out, err
}

func (c *Client) ToggleEquip(ctx context.Context, owner, itemID, idem string) (Outcome, error) {
	var out Outcome
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/armory/"+url.PathEscape(itemID)+"/toggle", owner, nil, &out, idem)
	return out, err
}

func (c *Client) Reset(ctx context.Context, owner, idem string) (Outcome, error) {
	var out Outcome
	err := c.jsonRequest(ctx, http.MethodDelete, "/v1/guardian", owner, nil, &out, idem)
	return out, err
}

func (c *Client) Catalog(ctx context.Context) (CatalogResponse, error) {
	var out CatalogResponse
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/catalog", "", nil, &out, "")
	return out, err
}

// Replay sends a previously queued request as-is, reusing its idempotency key.
func (c *Client) Replay(ctx context.Context, owner, method, path string, body map[string]any, idem string) (Outcome, error) {
	var out Outcome
	var in any
	if body != nil {
		in = body
	}
	err := c.jsonRequest(ctx, method, path, owner, in, &out, idem)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path, owner string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func errorMessage(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
