package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"moyomzuri/internal/params"
	"moyomzuri/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type AdminLoginPayload struct {
	Password string `json:"password" validate:"required,min=3,max=72"`
}

type adminTokenResponse struct {
	Token string `json:"token"`
}

// adminLoginHandler godoc
//
//	@Summary		Operator login
//	@Description	Exchanges the shared operator password for a bearer token
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		AdminLoginPayload	true	"Operator credential"
//	@Success		201		{object}	adminTokenResponse
//	@Failure		401		{object}	error
//	@Router			/admin/login [post]
func (app *application) adminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var payload AdminLoginPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword(
		[]byte(app.config.admin.passwordHash), []byte(payload.Password),
	); err != nil {
		app.unauthorizedErrorResponse(w, r, fmt.Errorf("invalid operator password"))
		return
	}

	claims := jwt.MapClaims{
		"sub":  "operator",
		"role": "admin",
		"exp":  time.Now().Add(app.config.auth.token.exp).Unix(),
		"iat":  time.Now().Unix(),
		"nbf":  time.Now().Unix(),
		"iss":  app.config.auth.token.iss,
		"aud":  app.config.auth.token.iss,
	}

	token, err := app.authenticator.GenerateToken(claims)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, adminTokenResponse{Token: token}); err != nil {
		app.internalServerError(w, r, err)
	}
}

type donationListResponse struct {
	Donations  []store.Donation  `json:"donations"`
	Pagination params.Pagination `json:"pagination"`
}

// listDonationsHandler godoc
//
//	@Summary		List donations
//	@Description	All donation attempts, newest first. Filter by status to find stuck pendings needing reconciliation.
//	@Tags			admin
//	@Produce		json
//	@Param			status	query		string	false	"pending, completed or failed"
//	@Param			page	query		int		false	"Page number"
//	@Param			limit	query		int		false	"Items per page"
//	@Success		200		{object}	donationListResponse
//	@Security		ApiKeyAuth
//	@Router			/admin/donations [get]
func (app *application) listDonationsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", store.DonationPending, store.DonationCompleted, store.DonationFailed:
	default:
		app.badRequestResponse(w, r, fmt.Errorf("unknown status %q", status))
		return
	}

	p := params.ParsePagination(r.URL.Query())

	donations, total, err := app.store.Donations.List(r.Context(), status, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	resp := donationListResponse{Donations: donations, Pagination: p}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// queryDonationHandler godoc
//
//	@Summary		Query the gateway for a donation's outcome
//	@Description	Manual fallback when the callback never arrived. Returns the raw gateway result; it does not mutate the ledger.
//	@Tags			admin
//	@Produce		json
//	@Param			donationID	path		int	true	"Donation ID"
//	@Success		200			{object}	mpesa.QueryResponse
//	@Failure		404			{object}	error
//	@Failure		502			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/donations/{donationID}/query [get]
func (app *application) queryDonationHandler(w http.ResponseWriter, r *http.Request) {
	donation, err := app.donationFromURL(w, r)
	if err != nil {
		return
	}

	if donation.CheckoutRequestID == nil {
		app.badRequestResponse(w, r, fmt.Errorf("donation has no checkout request to query"))
		return
	}

	res, err := app.mpesa.QueryStatus(r.Context(), *donation.CheckoutRequestID)
	if err != nil {
		app.logger.Errorw("stk push query failed", "donation_id", donation.ID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "gateway query failed")
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, res); err != nil {
		app.internalServerError(w, r, err)
	}
}

type CompleteDonationPayload struct {
	ReceiptNumber string `json:"receipt_number" validate:"omitempty,max=30"`
}

// completeDonationHandler godoc
//
//	@Summary		Manually complete a stuck donation
//	@Description	Same atomic transition as the callback path: the campaign total moves exactly once, and an already-terminal attempt is refused.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			donationID	path		int							true	"Donation ID"
//	@Param			payload		body		CompleteDonationPayload		false	"Receipt number, if known"
//	@Success		200			{object}	store.Donation
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error	"Already completed or failed"
//	@Security		ApiKeyAuth
//	@Router			/admin/donations/{donationID}/complete [post]
func (app *application) completeDonationHandler(w http.ResponseWriter, r *http.Request) {
	donation, err := app.donationFromURL(w, r)
	if err != nil {
		return
	}

	var payload CompleteDonationPayload
	if err := readJSON(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	receipt := payload.ReceiptNumber
	if receipt == "" {
		receipt = fmt.Sprintf("MANUAL-%d", donation.ID)
	}

	if err := app.store.Donations.Complete(r.Context(), donation.ID, receipt); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyFinal):
			app.conflictResponse(w, r, fmt.Errorf("donation is already completed or failed"))
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	app.logger.Infow("donation completed manually", "donation_id", donation.ID, "receipt", receipt)

	updated, err := app.store.Donations.GetByID(r.Context(), donation.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	app.sendDonationReceipt(updated, receipt)

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// failDonationHandler godoc
//
//	@Summary	Manually fail a stuck donation
//	@Tags		admin
//	@Produce	json
//	@Param		donationID	path		int	true	"Donation ID"
//	@Success	200			{object}	store.Donation
//	@Failure	404			{object}	error
//	@Failure	409			{object}	error
//	@Security	ApiKeyAuth
//	@Router		/admin/donations/{donationID}/fail [post]
func (app *application) failDonationHandler(w http.ResponseWriter, r *http.Request) {
	donation, err := app.donationFromURL(w, r)
	if err != nil {
		return
	}

	if err := app.store.Donations.MarkFailed(r.Context(), donation.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyFinal):
			app.conflictResponse(w, r, fmt.Errorf("donation is already completed or failed"))
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	app.logger.Infow("donation failed manually", "donation_id", donation.ID)

	updated, err := app.store.Donations.GetByID(r.Context(), donation.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) donationFromURL(w http.ResponseWriter, r *http.Request) (*store.Donation, error) {
	donationID, err := strconv.ParseInt(chi.URLParam(r, "donationID"), 10, 64)
	if err != nil {
		err = fmt.Errorf("invalid donation id")
		app.badRequestResponse(w, r, err)
		return nil, err
	}

	donation, err := app.store.Donations.GetByID(r.Context(), donationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
		} else {
			app.internalServerError(w, r, err)
		}
		return nil, err
	}

	return donation, nil
}
