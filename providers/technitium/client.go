// Package technitium adapts the Technitium DNS Server HTTP API to the
// provider contract.
package technitium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

const maxResponseBytes = 16 << 20

// apiResponse is the envelope every Technitium endpoint returns.
type apiResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
}

// apiRecord is one record as reported by zones/records/get.
type apiRecord struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	TTL      int    `json:"ttl"`
	Disabled bool   `json:"disabled"`
	RData    struct {
		IPAddress  string `json:"ipAddress,omitempty"`
		CName      string `json:"cname,omitempty"`
		Text       string `json:"text,omitempty"`
		Exchange   string `json:"exchange,omitempty"`
		Preference int    `json:"preference,omitempty"`
		Priority   int    `json:"priority,omitempty"`
		Weight     int    `json:"weight,omitempty"`
		Port       int    `json:"port,omitempty"`
		Target     string `json:"target,omitempty"`
		NameServer string `json:"nameServer,omitempty"`
		Flags      int    `json:"flags,omitempty"`
		Tag        string `json:"tag,omitempty"`
		Value      string `json:"value,omitempty"`
	} `json:"rData"`
}

// client wraps the token-authenticated HTTP API.
type client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

func newClient(baseURL, token string, logger *slog.Logger) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// call performs one API request. Technitium signals failures both via
// HTTP status and via status=error envelopes with a message.
func (c *client) call(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, provider.WrapError(providerName, endpoint, provider.ReasonOther, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, provider.WrapError(providerName, endpoint, provider.ReasonTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, provider.WrapError(providerName, endpoint, provider.ReasonTransient, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.WrapError(providerName, endpoint,
			provider.ReasonFromStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var env apiResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, provider.WrapError(providerName, endpoint, provider.ReasonOther,
			fmt.Errorf("parsing response: %w", err))
	}
	if env.Status != "ok" {
		return nil, c.apiError(endpoint, env.ErrorMessage)
	}
	return env.Response, nil
}

// apiError classifies a status=error envelope by its message text. The
// API reports everything over HTTP 200, so the message is all there is.
func (c *client) apiError(endpoint, message string) error {
	lower := strings.ToLower(message)
	reason := provider.ReasonOther
	switch {
	case strings.Contains(lower, "invalid token") || strings.Contains(lower, "session"):
		reason = provider.ReasonAuth
	case strings.Contains(lower, "already exists"):
		return provider.WrapError(providerName, endpoint, provider.ReasonInvalid,
			fmt.Errorf("%s: %w", message, provider.ErrConflict))
	case strings.Contains(lower, "no such") || strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist"):
		reason = provider.ReasonNotFound
	}
	return provider.WrapError(providerName, endpoint, reason, fmt.Errorf("api error: %s", message))
}

// ping verifies the token via the lightweight session endpoint.
func (c *client) ping(ctx context.Context) error {
	_, err := c.call(ctx, "/api/user/session/get", nil)
	return err
}

// listZone returns every record in the zone.
func (c *client) listZone(ctx context.Context, zone string) ([]apiRecord, error) {
	params := url.Values{}
	params.Set("domain", zone)
	params.Set("zone", zone)
	params.Set("listZone", "true")

	raw, err := c.call(ctx, "/api/zones/records/get", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Records []apiRecord `json:"records"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, provider.WrapError(providerName, "list", provider.ReasonOther,
			fmt.Errorf("parsing zone records: %w", err))
	}
	return result.Records, nil
}

// addRecord creates a record; rdata carries the type-specific fields.
func (c *client) addRecord(ctx context.Context, zone, domain, rtype string, ttl int, rdata url.Values) error {
	params := url.Values{}
	params.Set("zone", zone)
	params.Set("domain", domain)
	params.Set("type", rtype)
	params.Set("ttl", fmt.Sprint(ttl))
	for key, vals := range rdata {
		params.Set(key, vals[0])
	}
	_, err := c.call(ctx, "/api/zones/records/add", params)
	return err
}

// deleteRecord removes the exact record identified by its rdata.
func (c *client) deleteRecord(ctx context.Context, zone, domain, rtype string, rdata url.Values) error {
	params := url.Values{}
	params.Set("zone", zone)
	params.Set("domain", domain)
	params.Set("type", rtype)
	for key, vals := range rdata {
		params.Set(key, vals[0])
	}
	_, err := c.call(ctx, "/api/zones/records/delete", params)
	return err
}
