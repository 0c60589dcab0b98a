package mpesa

import "fmt"

// AuthError means the gateway refused to hand out an access token.
// It is not retried here; the caller decides whether to retry the
// whole operation.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mpesa auth failed: http=%d body=%s", e.StatusCode, e.Body)
}

// InitiationError means the gateway rejected the STK push request, or the
// request never qualified for one (bad phone, bad amount).
type InitiationError struct {
	Code    string
	Message string
}

func (e *InitiationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("stk push rejected: code=%s %s", e.Code, e.Message)
	}
	return "stk push rejected: " + e.Message
}

// QueryError means the status query for a previously initiated push failed.
type QueryError struct {
	StatusCode int
	Body       string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("stk push query failed: http=%d body=%s", e.StatusCode, e.Body)
}
