package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"moyomzuri/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successCallback(checkoutRequestID, receipt string) string {
	return fmt.Sprintf(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "merchant-1",
				"CheckoutRequestID": %q,
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 250},
						{"Name": "MpesaReceiptNumber", "Value": %q},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`, checkoutRequestID, receipt)
}

func requireAck(t *testing.T, body []byte) {
	t.Helper()
	var ack struct {
		ResultCode int    `json:"ResultCode"`
		ResultDesc string `json:"ResultDesc"`
	}
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.Equal(t, 0, ack.ResultCode)
	assert.Equal(t, "Success", ack.ResultDesc)
}

func TestCallbackCompletesDonation(t *testing.T) {
	ta := newTestApplication(t)
	campaign := ta.seedCampaign(t, "Clean Water", 1000, true)
	donation := ta.seedPendingDonation(t, campaign.ID, 250, "ws_CO_1")

	mux := ta.mount()
	rr := executeRequest(t, mux, http.MethodPost, "/v1/mpesa/callback",
		successCallback("ws_CO_1", "NLJ7RT61SV"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	requireAck(t, rr.Body.Bytes())

	got, err := ta.donations.GetByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DonationCompleted, got.Status)
	require.NotNil(t, got.MpesaReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *got.MpesaReceiptNumber)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, float64(250), ta.campaigns.totalRaised(campaign.ID))
}

func TestCallbackIsIdempotent(t *testing.T) {
	ta := newTestApplication(t)
	campaign := ta.seedCampaign(t, "Clean Water", 1000, true)
	donation := ta.seedPendingDonation(t, campaign.ID, 250, "ws_CO_1")

	mux := ta.mount()

	// Same successful callback delivered twice, second with a different
	// receipt to prove the original sticks.
	rr := executeRequest(t, mux, http.MethodPost, "/v1/mpesa/callback",
		successCallback("ws_CO_1", "NLJ7RT61SV"), "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = executeRequest(t, mux, http.MethodPost, "/v1/mpesa/callback",
		successCallback("ws_CO_1", "DUPLICATE99"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	requireAck(t, rr.Body.Bytes())

	// Incremented exactly once, original receipt retained.
	assert.Equal(t, float64(250), ta.campaigns.totalRaised(campaign.ID))
	got, err := ta.donations.GetByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DonationCompleted, got.Status)
	assert.Equal(t, "NLJ7RT61SV", *got.MpesaReceiptNumber)
}

func TestCallbackFailureResult(t *testing.T) {
	ta := newTestApplication(t)
	campaign := ta.seedCampaign(t, "Clean Water", 1000, true)
	donation := ta.seedPendingDonation(t, campaign.ID, 250, "ws_CO_1")

	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	rr := executeRequest(t, ta.mount(), http.MethodPost, "/v1/mpesa/callback", body, "")
	require.Equal(t, http.StatusOK, rr.Code)
	requireAck(t, rr.Body.Bytes())

	got, err := ta.donations.GetByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DonationFailed, got.Status)
	assert.Nil(t, got.MpesaReceiptNumber)
	assert.Equal(t, float64(0), ta.campaigns.totalRaised(campaign.ID))
}

func TestCallbackUnknownCheckoutRequest(t *testing.T) {
	ta := newTestApplication(t)
	ta.seedCampaign(t, "Clean Water", 1000, true)

	rr := executeRequest(t, ta.mount(), http.MethodPost, "/v1/mpesa/callback",
		successCallback("ws_CO_unknown", "NLJ7RT61SV"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	requireAck(t, rr.Body.Bytes())
}

func TestCallbackMalformedPayload(t *testing.T) {
	ta := newTestApplication(t)
	mux := ta.mount()

	for _, body := range []string{
		`not json at all`,
		`{}`,
		`{"Body":{}}`,
		`{"unexpected":"shape"}`,
	} {
		rr := executeRequest(t, mux, http.MethodPost, "/v1/mpesa/callback", body, "")
		require.Equal(t, http.StatusOK, rr.Code, "payload %q must still be acknowledged", body)
		requireAck(t, rr.Body.Bytes())
	}
}

func TestManualCompletion(t *testing.T) {
	ta := newTestApplication(t)
	campaign := ta.seedCampaign(t, "Clean Water", 1000, true)
	donation := ta.seedPendingDonation(t, campaign.ID, 250, "ws_CO_1")

	mux := ta.mount()
	token := ta.adminToken(t)

	rr := executeRequest(t, mux, http.MethodPost,
		fmt.Sprintf("/v1/admin/donations/%d/complete", donation.ID), "", token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got, err := ta.donations.GetByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DonationCompleted, got.Status)
	require.NotNil(t, got.MpesaReceiptNumber)
	assert.Equal(t, fmt.Sprintf("MANUAL-%d", donation.ID), *got.MpesaReceiptNumber)
	assert.Equal(t, float64(250), ta.campaigns.totalRaised(campaign.ID))
}

func TestManualCompletionAlreadyFinal(t *testing.T) {
	ta := newTestApplication(t)
	campaign := ta.seedCampaign(t, "Clean Water", 1000, true)
	donation := ta.seedPendingDonation(t, campaign.ID, 250, "ws_CO_1")

	mux := ta.mount()
	token := ta.adminToken(t)

	// Callback wins first.
	rr := executeRequest(t, mux, http.MethodPost, "/v1/mpesa/callback",
		successCallback("ws_CO_1", "NLJ7RT61SV"), "")
	require.Equal(t, http.StatusOK, rr.Code)

	// The manual completion loses the race: conflict, no second increment.
	rr = executeRequest(t, mux, http.MethodPost,
		fmt.Sprintf("/v1/admin/donations/%d/complete", donation.ID), "", token)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, float64(250), ta.campaigns.totalRaised(campaign.ID))

	got, err := ta.donations.GetByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, "NLJ7RT61SV", *got.MpesaReceiptNumber)
}

func TestManualFail(t *testing.T) {
	ta := newTestApplication(t)
	campaign := ta.seedCampaign(t, "Clean Water", 1000, true)
	donation := ta.seedPendingDonation(t, campaign.ID, 250, "ws_CO_1")

	mux := ta.mount()
	token := ta.adminToken(t)

	rr := executeRequest(t, mux, http.MethodPost,
		fmt.Sprintf("/v1/admin/donations/%d/fail", donation.ID), "", token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got, err := ta.donations.GetByID(context.Background(), donation.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DonationFailed, got.Status)
	assert.Equal(t, float64(0), ta.campaigns.totalRaised(campaign.ID))
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ta := newTestApplication(t)
	mux := ta.mount()

	rr := executeRequest(t, mux, http.MethodGet, "/v1/admin/donations", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = executeRequest(t, mux, http.MethodGet, "/v1/admin/donations", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAdminLoginWrongPassword(t *testing.T) {
	ta := newTestApplication(t)

	rr := executeRequest(t, ta.mount(), http.MethodPost, "/v1/admin/login",
		`{"password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
