// Package translation resolves localized display strings for attribute
// codes.
package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"github.com/baker-beach/market-index/internal/domain"
	apperrors "github.com/baker-beach/market-index/pkg/errors"
	"github.com/baker-beach/market-index/pkg/httpclient"
)

type messageResponse struct {
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// Client asks the translation service for messages. Unknown messages
// resolve to the key's fallback.
type Client struct {
	baseURL string
	http    httpclient.Doer
}

var _ domain.Translator = (*Client)(nil)

// New creates a client for the service at baseURL.
func New(baseURL string, doer httpclient.Doer) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

// Message implements domain.Translator.
func (c *Client) Message(ctx context.Context, key domain.MessageKey, locale language.Tag) (string, error) {
	q := url.Values{}
	q.Set("tag", key.Tag)
	q.Set("type", key.Type)
	q.Set("code", key.Code)
	q.Set("locale", locale.String())
	for _, p := range key.Params {
		q.Add("param", p)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/messages?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build translation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("translate %s/%s: %w", key.Tag, key.Code, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := httpclient.ParseResponseError(resp, "translation")
		if errors.Is(err, apperrors.ErrNotFound) {
			return key.Fallback, nil
		}
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var body messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode translation %s/%s: %w", key.Tag, key.Code, err)
	}
	if body.Data.Message == "" {
		return key.Fallback, nil
	}
	return body.Data.Message, nil
}

// Ping checks that the translation service answers its liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "translation")
	}
	return resp.Body.Close()
}
