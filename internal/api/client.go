// Package api is the HTTP client for the CRM backend collaborators: rule
// persistence, segment resolution, campaign creation, AI suggestions, and
// delivery stats. Transport failures, envelope-level failures, and timeouts
// are classified into the shared error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"crmline/internal/domain"
)

// Client talks to the CRM backend. Every call carries the session's bearer
// credential. No call has an implicit timeout; callers bound long-running
// operations through the context.
type Client struct {
	BaseURL    string
	Session    domain.Session
	HTTPClient *http.Client
}

// New creates a client for the given backend and session.
func New(baseURL string, session domain.Session) *Client {
	return &Client{
		BaseURL:    baseURL,
		Session:    session,
		HTTPClient: &http.Client{},
	}
}

// APIError wraps a non-2xx response or an envelope with success=false.
// StatusCode is 0 when the failure was reported inside a 2xx envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// Login exchanges an identity credential for a session.
func (c *Client) Login(ctx context.Context, credential string) (domain.Session, error) {
	var resp struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "api/auth/google", map[string]any{"credential": credential}, &resp)
	if err != nil {
		return domain.Session{}, err
	}
	if resp.Token == "" {
		return domain.Session{}, &APIError{Message: "login response carried no token"}
	}
	return domain.Session{Token: resp.Token, User: resp.User}, nil
}

// ListSegmentRules returns all saved segment rules.
func (c *Client) ListSegmentRules(ctx context.Context) ([]domain.SegmentRule, error) {
	body, err := c.get(ctx, "api/segment-rules")
	if err != nil {
		return nil, err
	}
	items, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	var rules []domain.SegmentRule
	if err := json.Unmarshal(items, &rules); err != nil {
		return nil, fmt.Errorf("decode segment rules: %w", err)
	}
	return rules, nil
}

// CreateSegmentRule persists a rule and returns the stored copy.
func (c *Client) CreateSegmentRule(ctx context.Context, rule domain.SegmentRule) (domain.SegmentRule, error) {
	var created domain.SegmentRule
	err := c.do(ctx, http.MethodPost, "api/segment-rules", rule, &created)
	if err != nil {
		return domain.SegmentRule{}, err
	}
	if created.ID == "" {
		return domain.SegmentRule{}, &APIError{Message: "create segment rule: response carried no id"}
	}
	return created, nil
}

// DeleteSegmentRule removes a rule permanently.
func (c *Client) DeleteSegmentRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/segment-rules/"+url.PathEscape(id), nil, nil)
}

// ListCustomersForSegment resolves the customers matching a rule right now.
func (c *Client) ListCustomersForSegment(ctx context.Context, ruleID string) ([]domain.Customer, error) {
	body, err := c.get(ctx, "api/segment-rules/"+url.PathEscape(ruleID)+"/customers")
	if err != nil {
		return nil, err
	}
	items, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	var customers []domain.Customer
	if err := json.Unmarshal(items, &customers); err != nil {
		return nil, fmt.Errorf("decode customers: %w", err)
	}
	return customers, nil
}

// ListCustomers returns every uploaded customer.
func (c *Client) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	body, err := c.get(ctx, "api/customers")
	if err != nil {
		return nil, err
	}
	items, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	var customers []domain.Customer
	if err := json.Unmarshal(items, &customers); err != nil {
		return nil, fmt.Errorf("decode customers: %w", err)
	}
	return customers, nil
}

// BulkImportCustomers uploads parsed CSV rows.
func (c *Client) BulkImportCustomers(ctx context.Context, customers []domain.Customer) error {
	return c.do(ctx, http.MethodPost, "api/customers/bulk-import", customers, nil)
}

// ListOrders returns every uploaded order.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	body, err := c.get(ctx, "api/orders")
	if err != nil {
		return nil, err
	}
	items, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	var orders []domain.Order
	if err := json.Unmarshal(items, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// BulkImportOrders uploads parsed CSV rows.
func (c *Client) BulkImportOrders(ctx context.Context, orders []domain.Order) error {
	return c.do(ctx, http.MethodPost, "api/orders/bulk-import", orders, nil)
}

// ListCampaigns returns the campaign history.
func (c *Client) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	body, err := c.get(ctx, "api/campaigns")
	if err != nil {
		return nil, err
	}
	items, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	var campaigns []domain.Campaign
	if err := json.Unmarshal(items, &campaigns); err != nil {
		return nil, fmt.Errorf("decode campaigns: %w", err)
	}
	return campaigns, nil
}

// CreateCampaign submits a campaign. The backend expects the payload inside
// a "campaign" wrapper.
func (c *Client) CreateCampaign(ctx context.Context, input domain.CampaignInput) (domain.Campaign, error) {
	var created domain.Campaign
	err := c.do(ctx, http.MethodPost, "api/campaigns", map[string]any{"campaign": input}, &created)
	if err != nil {
		return domain.Campaign{}, err
	}
	if created.ID == "" {
		return domain.Campaign{}, &APIError{Message: "create campaign: response carried no id"}
	}
	return created, nil
}

// statsEnvelope is the wire shape of the stats endpoint. Either section may
// be partial; the workflow merges in locally known fallbacks.
type statsEnvelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Stats   struct {
		Total     int    `json:"total"`
		Delivered int    `json:"delivered"`
		Pending   int    `json:"pending"`
		Failed    int    `json:"failed"`
		Summary   string `json:"summary"`
	} `json:"stats"`
	Campaign struct {
		Name      string                `json:"name"`
		Message   string                `json:"message"`
		Status    domain.CampaignStatus `json:"status"`
		CreatedAt string                `json:"createdAt"`
	} `json:"campaign"`
}

// CampaignStats fetches the delivery aggregate for one campaign. The call
// honors context cancellation and deadline; an exceeded deadline surfaces
// as a TimeoutError.
func (c *Client) CampaignStats(ctx context.Context, campaignID string) (domain.CampaignStats, error) {
	var env statsEnvelope
	err := c.do(ctx, http.MethodGet, "api/campaigns/"+url.PathEscape(campaignID)+"/stats", nil, &env)
	if err != nil {
		return domain.CampaignStats{}, err
	}
	if env.Success != nil && !*env.Success {
		return domain.CampaignStats{}, &APIError{Message: envelopeMessage(env.Message, env.Error)}
	}
	return domain.CampaignStats{
		Name:      env.Campaign.Name,
		Message:   env.Campaign.Message,
		Status:    env.Campaign.Status,
		Total:     env.Stats.Total,
		Delivered: env.Stats.Delivered,
		Pending:   env.Stats.Pending,
		Failed:    env.Stats.Failed,
		Summary:   env.Stats.Summary,
		CreatedAt: env.Campaign.CreatedAt,
	}, nil
}

// GenerateSuggestions asks the AI service for candidate messages for an
// intent, scoped to a segment. Both shapes are accepted: a bare array or
// an object carrying "suggestions".
func (c *Client) GenerateSuggestions(ctx context.Context, intent, segmentRuleID string) ([]string, error) {
	payload := map[string]any{"intent": intent, "segmentRuleId": segmentRuleID}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "api/campaigns/ai-suggestions", payload, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var suggestions []string
		if err := json.Unmarshal(trimmed, &suggestions); err != nil {
			return nil, fmt.Errorf("decode suggestions: %w", err)
		}
		return suggestions, nil
	}
	var obj struct {
		Success     *bool    `json:"success"`
		Message     string   `json:"message"`
		Error       string   `json:"error"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if obj.Success != nil && !*obj.Success {
		return nil, &APIError{Message: envelopeMessage(obj.Message, obj.Error)}
	}
	if obj.Suggestions == nil {
		return nil, &APIError{Message: "suggestion response carried no suggestions"}
	}
	return obj.Suggestions, nil
}

// listPayload normalizes a list response: either a bare JSON array or an
// envelope {success, data} / {success, message}. An envelope reporting
// success=false is a failure, same as a transport error.
func listPayload(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return trimmed, nil
	}
	var env struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("malformed list response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, &APIError{Message: envelopeMessage(env.Message, env.Error)}
	}
	if len(env.Data) == 0 {
		return json.RawMessage("[]"), nil
	}
	return env.Data, nil
}

func envelopeMessage(message, errMsg string) string {
	switch {
	case message != "":
		return message
	case errMsg != "":
		return errMsg
	default:
		return "request failed"
	}
}

func (c *Client) get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	reqURL := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Session.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &domain.TimeoutError{Op: method + " " + endpoint}
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: bodyMessage(b)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// bodyMessage extracts a human-readable message from an error body, falling
// back to the raw payload.
func bodyMessage(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
