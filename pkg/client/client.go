// Package client is a Go client for the LicenseIQ HTTP API.
package client

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
)

// APIError is a non-2xx response decoded from an RFC 7807 problem body.
type APIError struct {
	StatusCode int
	Type       string       `json:"type"`
	Title      string       `json:"title"`
	Detail     string       `json:"detail"`
	Errors     []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("licenseiq: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("licenseiq: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the service.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client is the LicenseIQ API client
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new LicenseIQ client
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	// Set defaults
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    httpClient,
	}, nil
}

// Health checks connectivity to the service. Does not require an API key.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Synthesize runs the synthesis pipeline for a contract.
func (c *Client) Synthesize(ctx context.Context, contractID string, params SynthesizeParams) (*SynthesisResult, error) {
	var result SynthesisResult
	if err := c.do(ctx, http.MethodPost, contractPath(contractID, "synthesize"), params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRules lists a contract's persisted rules, oldest first.
func (c *Client) ListRules(ctx context.Context, contractID string) ([]Rule, error) {
	var resp struct {
		Rules []Rule `json:"rules"`
	}
	if err := c.do(ctx, http.MethodGet, contractPath(contractID, "rules"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// GetRule fetches a single rule by ID.
func (c *Client) GetRule(ctx context.Context, id string) (*Rule, error) {
	var rule Rule
	if err := c.do(ctx, http.MethodGet, "/api/v1/rules/"+url.PathEscape(id), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ReviewRule sets a rule's validation status ("pending" or "validated").
func (c *Client) ReviewRule(ctx context.Context, id, status string) (*Rule, error) {
	var rule Rule
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/rules/"+url.PathEscape(id)+"/review", body, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListTermMappings lists a contract's term mappings. An empty status lists all.
func (c *Client) ListTermMappings(ctx context.Context, contractID, status string) ([]TermMappingRecord, error) {
	path := contractPath(contractID, "term-mappings")
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Mappings []TermMappingRecord `json:"mappings"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Mappings, nil
}

// ProposeTermMapping creates a pending term mapping for a contract.
func (c *Client) ProposeTermMapping(ctx context.Context, contractID string, m TermMapping) (*TermMappingRecord, error) {
	var rec TermMappingRecord
	if err := c.do(ctx, http.MethodPost, contractPath(contractID, "term-mappings"), m, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetTermMappingStatus confirms, rejects, or reopens a term mapping.
func (c *Client) SetTermMappingStatus(ctx context.Context, id, status string) (*TermMappingRecord, error) {
	var rec TermMappingRecord
	body := map[string]string{"status": status}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/term-mappings/"+url.PathEscape(id), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Terminology renders a contract term with its confirmed ERP field, if any.
func (c *Client) Terminology(ctx context.Context, contractID, term string) (string, error) {
	var resp struct {
		Display string `json:"display"`
	}
	path := contractPath(contractID, "terminology") + "?term=" + url.QueryEscape(term)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Display, nil
}

func contractPath(contractID, resource string) string {
	return "/api/v1/contracts/" + url.PathEscape(contractID) + "/" + resource
}

// do sends an authenticated JSON request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// A body that is not a problem document still yields a usable error.
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
