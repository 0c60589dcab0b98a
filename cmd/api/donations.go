package main

import (
	"errors"
	"fmt"
	"net/http"

	"moyomzuri/internal/mpesa"
	"moyomzuri/internal/store"

	"github.com/go-chi/chi/v5"
)

type CreateDonationPayload struct {
	CampaignID  int64   `json:"campaign_id" validate:"required,gt=0"`
	Amount      float64 `json:"amount" validate:"required,gte=1"`
	PhoneNumber string  `json:"phone_number" validate:"required,kenyanphone"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
}

type donationInitiatedResponse struct {
	Reference         string `json:"reference"`
	CheckoutRequestID string `json:"checkout_request_id"`
	MerchantRequestID string `json:"merchant_request_id"`
	Message           string `json:"message"`
}

type donationStatusResponse struct {
	Reference     string  `json:"reference"`
	CampaignID    int64   `json:"campaign_id"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	ReceiptNumber *string `json:"receipt_number,omitempty"`
}

// createDonationHandler godoc
//
//	@Summary		Donate to a campaign
//	@Description	Creates a pending donation and asks M-Pesa to prompt the donor's phone. The outcome arrives asynchronously; poll the returned reference.
//	@Tags			donations
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreateDonationPayload	true	"Donation details"
//	@Success		201		{object}	donationInitiatedResponse
//	@Failure		400		{object}	error
//	@Failure		404		{object}	error
//	@Failure		502		{object}	error	"Gateway rejected the push request"
//	@Router			/donations [post]
func (app *application) createDonationHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateDonationPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	phone, err := mpesa.NormalizePhone(payload.PhoneNumber)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	campaign, err := app.store.Campaigns.GetByID(r.Context(), payload.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}
	if !campaign.IsActive {
		app.badRequestResponse(w, r, fmt.Errorf("this campaign is no longer accepting donations"))
		return
	}

	// Pending ledger entry first; it must exist before the callback can
	// possibly arrive.
	donation := &store.Donation{
		CampaignID:  campaign.ID,
		Amount:      payload.Amount,
		PhoneNumber: phone,
		Email:       payload.Email,
	}
	if err := app.store.Donations.Create(r.Context(), donation); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	res, err := app.mpesa.STKPush(r.Context(), mpesa.STKPushRequest{
		PhoneNumber:      phone,
		Amount:           payload.Amount,
		AccountReference: fmt.Sprintf("DONATION-%d", donation.ID),
		Description:      "Donation to " + campaign.Title,
	})
	if err != nil {
		// Includes timeouts: an attempt whose push never made it out must
		// not sit pending forever.
		if failErr := app.store.Donations.MarkFailed(r.Context(), donation.ID); failErr != nil {
			app.logger.Errorw("failed to mark donation failed", "donation_id", donation.ID, "error", failErr)
		}
		app.paymentInitiationFailedResponse(w, r, err)
		return
	}

	if err := app.store.Donations.AttachCheckoutRequest(r.Context(), donation.ID, res.MerchantRequestID, res.CheckoutRequestID); err != nil {
		// The push is already out; the callback will still find nothing to
		// match. Log loudly, the attempt stays visible for manual repair.
		app.logger.Errorw("failed to attach checkout request",
			"donation_id", donation.ID, "checkout_request_id", res.CheckoutRequestID, "error", err)
		app.internalServerError(w, r, err)
		return
	}

	reference, err := app.donationReference(donation.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("stk push initiated",
		"donation_id", donation.ID, "campaign_id", campaign.ID, "checkout_request_id", res.CheckoutRequestID)

	resp := donationInitiatedResponse{
		Reference:         reference,
		CheckoutRequestID: res.CheckoutRequestID,
		MerchantRequestID: res.MerchantRequestID,
		Message:           "Check your phone for the M-Pesa payment prompt.",
	}
	if err := app.jsonResponse(w, http.StatusCreated, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getDonationStatusHandler godoc
//
//	@Summary		Poll a donation's status
//	@Description	The front end polls this after initiation; pending means the callback has not arrived yet.
//	@Tags			donations
//	@Produce		json
//	@Param			reference	path		string	true	"Donation reference"
//	@Success		200			{object}	donationStatusResponse
//	@Failure		404			{object}	error
//	@Router			/donations/{reference} [get]
func (app *application) getDonationStatusHandler(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	id, err := app.donationIDFromReference(reference)
	if err != nil {
		app.notFoundResponse(w, r, err)
		return
	}

	donation, err := app.store.Donations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	resp := donationStatusResponse{
		Reference:     reference,
		CampaignID:    donation.CampaignID,
		Amount:        donation.Amount,
		Status:        donation.Status,
		ReceiptNumber: donation.MpesaReceiptNumber,
	}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}
