package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// APIError is a non-2xx response from the Messages API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio: api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Client sends outbound WhatsApp messages through the Twilio REST API.
type Client struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Messages API client. from is the relay's WhatsApp
// number in transport form (whatsapp:+1...).
func NewClient(accountSID, authToken, from string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL overrides the API endpoint (useful for testing).
func NewClientWithBaseURL(accountSID, authToken, from, baseURL string) *Client {
	c := NewClient(accountSID, authToken, from)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// SendMessage delivers body to the given WhatsApp number (transport
// form) and returns the message SID.
func (c *Client) SendMessage(ctx context.Context, to, body string) (string, error) {
	form := url.Values{
		"From": {c.from},
		"To":   {to},
		"Body": {body},
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio: send message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.handleErrorResponse(resp)
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("twilio: decode response: %w", err)
	}
	return out.SID, nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: errResp.Code, Message: errResp.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}
