// Package tradeclient is the HTTP client for the trading backend: order book
// snapshots and limit order submission. It holds no state besides the base
// URL and maps backend failures onto the error types the ticket layer
// understands.
package tradeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joripage/orderentry-dev/pkg/ticket"
)

type Config struct {
	// BaseURL is the trading backend root, e.g. http://localhost:8080.
	BaseURL string
	// Timeout bounds each request when set. Zero keeps requests open until
	// the backend answers, matching the submit semantics: an in flight order
	// is never abandoned by the client.
	Timeout time.Duration
}

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(cfg Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchOrderBook retrieves the order book snapshot for asset. The payload
// shape belongs to the backend; it is validated as JSON and passed through
// untouched.
func (c *Client) FetchOrderBook(ctx context.Context, asset string) (json.RawMessage, error) {
	endpoint := c.baseURL + "/orderbook/" + url.PathEscape(asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{Asset: asset, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}
	var snapshot json.RawMessage
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, &FetchError{Asset: asset, Err: err}
	}
	return snapshot, nil
}

// orderPayload is the wire form of a submitted order. Amounts travel as JSON
// numbers carrying the already rounded ticket values.
type orderPayload struct {
	Asset    string  `json:"asset"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Notional float64 `json:"notional"`
}

// SubmitOrder posts the order to the backend. A 2xx answer means accepted
// and the body is ignored. A non-2xx answer becomes a *ticket.SubmissionError
// carrying the body's "error" field when the backend supplied one. Transport
// failures are returned as plain errors for the caller to log; the ticket
// layer shows its generic failure message for those.
func (c *Client) SubmitOrder(ctx context.Context, order *ticket.Order) error {
	payload := orderPayload{
		Asset:    order.Asset,
		Side:     string(order.Side),
		Type:     string(order.Type),
		Quantity: order.Quantity.InexactFloat64(),
		Price:    order.Price.InexactFloat64(),
		Notional: order.Notional.InexactFloat64(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/trade", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trade request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("post trade: %w", err)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(resp.Body)
	var reject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &reject); err == nil && reject.Error != "" {
		return &ticket.SubmissionError{Message: reject.Error}
	}
	return &ticket.SubmissionError{}
}
