// Package api is the typed client for the readings/rules REST backend.
package api

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

	"iot-automation-engine/internal/logger"
	"iot-automation-engine/internal/rule"
)

// Client talks to the backend. Callers never see URLs, status codes
// or JSON decoding.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a backend client. The timeout bounds every
// request; the default http.Client has none and a dead backend would
// otherwise hang the poll loop.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log,
	}
}

// ruleDoc is the backend rule shape; documents carry the identifier
// as either `_id` or `id`.
type ruleDoc struct {
	rule.Rule
	MongoID string `json:"_id"`
}

func (d ruleDoc) toRule() rule.Rule {
	r := d.Rule
	if r.ID == "" {
		r.ID = d.MongoID
	}
	return r
}

// saveRuleRequest is the POST /api/rules body.
type saveRuleRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	Type        rule.RuleType  `json:"type"`
	EspID       string         `json:"espId"`
	MetricKey   string         `json:"metricKey,omitempty"`
	Operator    string         `json:"operador,omitempty"`
	Threshold   *float64       `json:"threshold,omitempty"`
	Schedule    *rule.Schedule `json:"schedule,omitempty"`
}

type saveRuleResponse struct {
	Rule ruleDoc `json:"rule"`
}

// FetchRules returns all backend rules.
func (c *Client) FetchRules(ctx context.Context) ([]rule.Rule, error) {
	var docs []ruleDoc
	if err := c.getJSON(ctx, c.baseURL+"/api/rules", &docs); err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}

	rules := make([]rule.Rule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, doc.toRule())
	}
	return rules, nil
}

// SaveRule persists a rule to the backend and returns the canonical
// copy, including the backend-assigned identifier.
func (c *Client) SaveRule(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	body, err := json.Marshal(saveRuleRequest{
		Name:        r.Name,
		Description: r.Description,
		Enabled:     r.Enabled,
		Type:        r.Type,
		EspID:       r.EspID,
		MetricKey:   r.MetricKey,
		Operator:    r.Operator,
		Threshold:   r.Threshold,
		Schedule:    r.Schedule,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rules", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var saved saveRuleResponse
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return nil, fmt.Errorf("failed to parse save response: %w", err)
	}

	canonical := saved.Rule.toRule()
	return &canonical, nil
}

// DeleteRule removes a rule from the backend.
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	target := c.baseURL + "/api/rules/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return nil
}

// LatestReading returns the most recent reading for a device, or nil
// when the backend has none.
func (c *Client) LatestReading(ctx context.Context, espID string) (map[string]interface{}, error) {
	target := fmt.Sprintf("%s/api/readings/%s/latest", c.baseURL, url.PathEscape(espID))

	var payload map[string]interface{}
	if err := c.getJSON(ctx, target, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch latest reading for %s: %w", espID, err)
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

// Readings returns the ordered reading history for a device.
func (c *Client) Readings(ctx context.Context, espID string) ([]map[string]interface{}, error) {
	target := fmt.Sprintf("%s/api/readings/%s", c.baseURL, url.PathEscape(espID))

	var payloads []map[string]interface{}
	if err := c.getJSON(ctx, target, &payloads); err != nil {
		return nil, fmt.Errorf("failed to fetch readings for %s: %w", espID, err)
	}
	return payloads, nil
}

// getJSON performs a GET and decodes the response body into v. Empty
// and "null" bodies leave v untouched.
func (c *Client) getJSON(ctx context.Context, target string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
