// Package inventory reads stock levels from the inventory service.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/baker-beach/market-index/internal/domain"
	"github.com/baker-beach/market-index/pkg/httpclient"
)

type statusResponse struct {
	Data *domain.InventoryStatus `json:"data"`
}

// Client implements availability.InventoryLookup over HTTP.
type Client struct {
	baseURL string
	http    httpclient.Doer
}

// New creates a client for the service at baseURL.
func New(baseURL string, doer httpclient.Doer) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

// Status returns the stock state of the product with the given code.
// Unknown products yield an error wrapping apperrors.ErrNotFound.
func (c *Client) Status(ctx context.Context, code string) (domain.InventoryStatus, error) {
	endpoint := fmt.Sprintf("%s/api/v1/inventory/%s/status", c.baseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.InventoryStatus{}, fmt.Errorf("build inventory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return domain.InventoryStatus{}, fmt.Errorf("inventory status %s: %w", code, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.InventoryStatus{}, httpclient.ParseResponseError(resp, "inventory")
	}
	defer func() { _ = resp.Body.Close() }()

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.InventoryStatus{}, fmt.Errorf("decode inventory status %s: %w", code, err)
	}
	if body.Data == nil {
		return domain.InventoryStatus{}, fmt.Errorf("inventory status %s: empty response", code)
	}
	return *body.Data, nil
}
