// Package scamledger is a small Go client for the scamledger HTTP API.
package scamledger

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
)

// Client talks to a scamledger server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures the client.
type Option func(*Client)

// WithAPIKey attaches an API key to every request. Submissions made with a
// key are recorded as API-sourced.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string   `json:"error"`
	Message    string   `json:"message"`
	Details    []string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("scamledger: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("scamledger: %s (%d)", e.Code, e.StatusCode)
}

// ReportInput is a scam report submission.
type ReportInput struct {
	Chain        string   `json:"chain"`
	Address      string   `json:"address"`
	ScamType     string   `json:"scam_type"`
	Description  string   `json:"description"`
	LossAmount   *float64 `json:"loss_amount,omitempty"`
	LossCurrency *string  `json:"loss_currency,omitempty"`
	EvidenceURL  *string  `json:"evidence_url,omitempty"`
	TxHash       *string  `json:"tx_hash,omitempty"`
}

// Report is the public view of a stored report.
type Report struct {
	ID          string    `json:"id"`
	Chain       string    `json:"chain"`
	Address     string    `json:"address"`
	ScamType    string    `json:"scam_type"`
	Description string    `json:"description"`
	LossAmount  *float64  `json:"loss_amount"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// Address is the aggregate view of one (chain,address).
type Address struct {
	ID             string     `json:"id"`
	Chain          string     `json:"chain"`
	Address        string     `json:"address"`
	ReportCount    int        `json:"report_count"`
	TotalLostUSD   float64    `json:"total_lost_usd"`
	RiskScore      int        `json:"risk_score"`
	RiskLevel      string     `json:"risk_level"`
	HasThreatIntel bool       `json:"has_threat_intel"`
	LastReportedAt *time.Time `json:"last_reported_at"`
}

// AddressDetail is an aggregate with its reports and intel records.
type AddressDetail struct {
	Address     Address           `json:"address"`
	Reports     []Report          `json:"reports"`
	ThreatIntel []json.RawMessage `json:"threat_intel"`
}

// CheckResult is the lightweight format-detection lookup.
type CheckResult struct {
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Reported bool   `json:"reported"`
	Summary  *struct {
		ReportCount    int    `json:"report_count"`
		RiskScore      int    `json:"risk_score"`
		RiskLevel      string `json:"risk_level"`
		HasThreatIntel bool   `json:"has_threat_intel"`
	} `json:"summary"`
}

// Overview is the headline statistics block.
type Overview struct {
	TotalReports      int     `json:"total_reports"`
	HighRiskAddresses int     `json:"high_risk_addresses"`
	TotalLossUSD      float64 `json:"total_loss_usd"`
	MonthlyReports    int     `json:"monthly_reports"`
}

// SubmitReport submits one scam report.
func (c *Client) SubmitReport(ctx context.Context, in *ReportInput) (*Report, error) {
	var out struct {
		Report Report `json:"report"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/reports", in, &out); err != nil {
		return nil, err
	}
	return &out.Report, nil
}

// CheckAddress detects the chain from the address format and returns the
// reporting summary when the address is known.
func (c *Client) CheckAddress(ctx context.Context, addr string) (*CheckResult, error) {
	var out CheckResult
	path := "/v1/check/" + url.PathEscape(addr)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAddress fetches the full detail for one (chain,address).
func (c *Client) GetAddress(ctx context.Context, chain, addr string) (*AddressDetail, error) {
	var out AddressDetail
	path := "/v1/addresses/" + url.PathEscape(chain) + "/" + url.PathEscape(addr)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HighRisk lists the highest-scored addresses.
func (c *Client) HighRisk(ctx context.Context, limit int) ([]Address, error) {
	var out struct {
		Addresses []Address `json:"addresses"`
	}
	path := fmt.Sprintf("/v1/addresses/high-risk?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Addresses, nil
}

// StatsOverview fetches the headline statistics.
func (c *Client) StatsOverview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.do(ctx, http.MethodGet, "/v1/stats/overview", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unexpected_response"
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
