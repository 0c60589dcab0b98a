package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"moyomzuri/internal/mailer"
	"moyomzuri/internal/mpesa"
	"moyomzuri/internal/store"
)

// mpesaCallbackHandler receives the gateway's asynchronous payment
// outcome. The caller is not authenticated (anyone holding the callback
// URL could forge a completion; known weakness, a production hardening
// would verify origin at this boundary without changing the algorithm
// below). Whatever happens internally, the response is the fixed success
// ack: anything else makes Daraja redeliver indefinitely, and redelivery
// is safe for us anyway because the transition is idempotent.
func (app *application) mpesaCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var env mpesa.CallbackEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil || env.Body.StkCallback == nil {
		app.logger.Warnw("malformed mpesa callback", "remote", r.RemoteAddr)
		app.ackCallback(w)
		return
	}

	cb := env.Body.StkCallback

	donation, err := app.store.Donations.GetByCheckoutRequestID(r.Context(), cb.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.logger.Warnw("callback for unknown checkout request", "checkout_request_id", cb.CheckoutRequestID)
		} else {
			app.logger.Errorw("callback lookup failed", "checkout_request_id", cb.CheckoutRequestID, "error", err)
		}
		app.ackCallback(w)
		return
	}

	if donation.IsFinal() {
		// Redelivered callback; the first one already settled this attempt.
		app.ackCallback(w)
		return
	}

	if cb.Succeeded() {
		receipt := cb.ReceiptNumber()
		err := app.store.Donations.Complete(r.Context(), donation.ID, receipt)
		switch {
		case err == nil:
			app.logger.Infow("donation completed",
				"donation_id", donation.ID, "campaign_id", donation.CampaignID,
				"amount", donation.Amount, "receipt", receipt)
			app.sendDonationReceipt(donation, receipt)
		case errors.Is(err, store.ErrAlreadyFinal):
			// Lost the race against another callback or a manual completion.
		default:
			app.logger.Errorw("failed to complete donation", "donation_id", donation.ID, "error", err)
		}
	} else {
		err := app.store.Donations.MarkFailed(r.Context(), donation.ID)
		if err != nil && !errors.Is(err, store.ErrAlreadyFinal) {
			app.logger.Errorw("failed to mark donation failed", "donation_id", donation.ID, "error", err)
		}
		app.logger.Infow("donation failed",
			"donation_id", donation.ID, "result_code", cb.ResultCode, "result_desc", cb.ResultDesc)
	}

	app.ackCallback(w)
}

func (app *application) ackCallback(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, mpesa.AckSuccess)
}

// mpesaCallbackLivenessHandler lets an operator confirm the callback URL
// is reachable before registering it with the gateway.
func (app *application) mpesaCallbackLivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "mpesa callback endpoint is active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// sendDonationReceipt emails a receipt when the donor left an address.
// Fire and forget: a mail failure must never leak into the gateway ack.
func (app *application) sendDonationReceipt(donation *store.Donation, receipt string) {
	if donation.Email == nil || *donation.Email == "" {
		return
	}

	email := *donation.Email
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		campaign, err := app.store.Campaigns.GetByID(ctx, donation.CampaignID)
		if err != nil {
			app.logger.Errorw("receipt email: campaign lookup failed", "donation_id", donation.ID, "error", err)
			return
		}

		data := struct {
			CampaignTitle string
			Amount        float64
			ReceiptNumber string
		}{
			CampaignTitle: campaign.Title,
			Amount:        donation.Amount,
			ReceiptNumber: receipt,
		}

		status, err := app.mailer.Send(mailer.DonationReceiptTemplate, "", email, data)
		if err != nil {
			app.logger.Errorw("failed to send receipt email", "donation_id", donation.ID, "error", err)
			return
		}
		app.logger.Infow("receipt email sent", "donation_id", donation.ID, "status", status)
	}()
}
