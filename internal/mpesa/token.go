package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// AccessToken fetches a short-lived bearer token using the consumer
// key/secret as HTTP Basic credentials. No retry: a failed token fetch
// fails the operation that needed it.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	url := c.baseURL + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("token decode: %w body=%s", err, string(raw))
	}

	return res.AccessToken, nil
}
