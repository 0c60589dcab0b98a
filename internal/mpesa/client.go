package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Gateway is the swappable surface the handlers depend on, so tests can
// substitute a fake instead of hitting Safaricom.
type Gateway interface {
	STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResponse, error)
}

// Config carries the Daraja credentials. It is passed in at construction;
// the client never reads the environment on its own.
type Config struct {
	Environment    string // "sandbox" or "production"
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(cfg Config) *Client {
	baseURL := "https://sandbox.safaricom.co.ke"
	if cfg.Environment == "production" {
		baseURL = "https://api.safaricom.co.ke"
	}

	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		// STK pushes regularly take several seconds; the timeout bounds
		// them so a dead gateway cannot pin a request handler forever.
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// credentials builds the time-bound password Daraja expects on both the
// process and query requests: base64(shortcode + passkey + timestamp).
func (c *Client) credentials() (timestamp, password string) {
	timestamp = c.now().Format("20060102150405")
	password = base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp),
	)
	return timestamp, password
}

func (c *Client) postJSON(ctx context.Context, path, token string, payload any) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("gateway response: %w", err)
	}

	return raw, resp.StatusCode, nil
}
