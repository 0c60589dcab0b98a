package mpesa

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

type STKPushRequest struct {
	PhoneNumber      string
	Amount           float64
	AccountReference string
	Description      string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type QueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// gatewayError is Daraja's error envelope on non-2xx responses.
type gatewayError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// STKPush asks the gateway to prompt the payer's phone for approval and
// returns the tracking identifiers for the asynchronous outcome. It does
// not touch the ledger: the caller creates the pending attempt before
// calling and records the CheckoutRequestID (or marks the attempt failed)
// afterward.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, &InitiationError{Message: err.Error()}
	}

	// Daraja only accepts whole shillings.
	amount := int(math.Round(req.Amount))
	if amount < 1 {
		return nil, &InitiationError{Message: "amount must be at least one shilling"}
	}

	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp, password := c.credentials()

	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	raw, status, err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", token, payload)
	if err != nil {
		return nil, fmt.Errorf("stk push: %w", err)
	}

	if status < 200 || status >= 300 {
		var gwErr gatewayError
		_ = json.Unmarshal(raw, &gwErr)
		if gwErr.ErrorMessage == "" {
			gwErr.ErrorMessage = fmt.Sprintf("http=%d body=%s", status, string(raw))
		}
		return nil, &InitiationError{Code: gwErr.ErrorCode, Message: gwErr.ErrorMessage}
	}

	var res STKPushResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("stk push decode: %w body=%s", err, string(raw))
	}

	if res.ResponseCode != "0" {
		return nil, &InitiationError{Code: res.ResponseCode, Message: res.ResponseDescription}
	}

	return &res, nil
}

// QueryStatus asks the gateway for the current outcome of a previously
// initiated push. It is the manual fallback for when the callback never
// arrived; it returns the raw result and mutates nothing, so the caller
// applies the same transition rule as the callback path.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*QueryResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp, password := c.credentials()

	payload := map[string]any{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	raw, status, err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", token, payload)
	if err != nil {
		return nil, fmt.Errorf("stk push query: %w", err)
	}

	if status < 200 || status >= 300 {
		return nil, &QueryError{StatusCode: status, Body: string(raw)}
	}

	var res QueryResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("stk push query decode: %w body=%s", err, string(raw))
	}

	return &res, nil
}
