package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"moyomzuri/internal/params"
	"moyomzuri/internal/store"

	"github.com/go-chi/chi/v5"
)

type CreateCampaignPayload struct {
	Title        string  `json:"title" validate:"required,max=120"`
	Description  string  `json:"description" validate:"required,max=2000"`
	TargetAmount float64 `json:"target_amount" validate:"required,gt=0"`
}

type UpdateCampaignPayload struct {
	Title        *string  `json:"title" validate:"omitempty,max=120"`
	Description  *string  `json:"description" validate:"omitempty,max=2000"`
	TargetAmount *float64 `json:"target_amount" validate:"omitempty,gt=0"`
	IsActive     *bool    `json:"is_active"`
}

type campaignListResponse struct {
	Campaigns  []store.Campaign  `json:"campaigns"`
	Pagination params.Pagination `json:"pagination"`
}

// listCampaignsHandler godoc
//
//	@Summary		List active campaigns
//	@Description	Returns active fundraising campaigns, newest first
//	@Tags			campaigns
//	@Produce		json
//	@Param			page	query		int	false	"Page number"
//	@Param			limit	query		int	false	"Items per page"
//	@Success		200		{object}	campaignListResponse
//	@Router			/campaigns [get]
func (app *application) listCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	p := params.ParsePagination(r.URL.Query())

	campaigns, total, err := app.store.Campaigns.List(r.Context(), true, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	resp := campaignListResponse{Campaigns: campaigns, Pagination: p}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getCampaignHandler godoc
//
//	@Summary	Get one campaign
//	@Tags		campaigns
//	@Produce	json
//	@Param		campaignID	path		int	true	"Campaign ID"
//	@Success	200			{object}	store.Campaign
//	@Failure	404			{object}	error
//	@Router		/campaigns/{campaignID} [get]
func (app *application) getCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaign, err := app.campaignFromURL(w, r)
	if err != nil {
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, campaign); err != nil {
		app.internalServerError(w, r, err)
	}
}

// createCampaignHandler godoc
//
//	@Summary	Create a campaign
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		CreateCampaignPayload	true	"Campaign details"
//	@Success	201		{object}	store.Campaign
//	@Failure	400		{object}	error
//	@Security	ApiKeyAuth
//	@Router		/admin/campaigns [post]
func (app *application) createCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateCampaignPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	campaign := &store.Campaign{
		Title:        payload.Title,
		Description:  payload.Description,
		TargetAmount: payload.TargetAmount,
	}

	if err := app.store.Campaigns.Create(r.Context(), campaign); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("campaign created", "id", campaign.ID, "title", campaign.Title)

	if err := app.jsonResponse(w, http.StatusCreated, campaign); err != nil {
		app.internalServerError(w, r, err)
	}
}

// updateCampaignHandler godoc
//
//	@Summary		Update a campaign
//	@Description	Partial update of title, description, target amount or active flag. Campaigns are deactivated, never deleted.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			campaignID	path		int						true	"Campaign ID"
//	@Param			payload		body		UpdateCampaignPayload	true	"Fields to update"
//	@Success		200			{object}	store.Campaign
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/admin/campaigns/{campaignID} [patch]
func (app *application) updateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.ParseInt(chi.URLParam(r, "campaignID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid campaign id"))
		return
	}

	var payload UpdateCampaignPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	updates := map[string]interface{}{}
	if payload.Title != nil {
		updates["title"] = *payload.Title
	}
	if payload.Description != nil {
		updates["description"] = *payload.Description
	}
	if payload.TargetAmount != nil {
		updates["target_amount"] = *payload.TargetAmount
	}
	if payload.IsActive != nil {
		updates["is_active"] = *payload.IsActive
	}
	if len(updates) == 0 {
		app.badRequestResponse(w, r, fmt.Errorf("no fields to update"))
		return
	}

	if err := app.store.Campaigns.Update(r.Context(), campaignID, updates); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	campaign, err := app.store.Campaigns.GetByID(r.Context(), campaignID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, campaign); err != nil {
		app.internalServerError(w, r, err)
	}
}

// uploadCampaignImageHandler godoc
//
//	@Summary	Upload a campaign cover image
//	@Tags		admin
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		campaignID	path		int		true	"Campaign ID"
//	@Param		image		formData	file	true	"Cover image"
//	@Success	200			{object}	map[string]string
//	@Security	ApiKeyAuth
//	@Router		/admin/campaigns/{campaignID}/image [post]
func (app *application) uploadCampaignImageHandler(w http.ResponseWriter, r *http.Request) {
	campaign, err := app.campaignFromURL(w, r)
	if err != nil {
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("could not parse form: %w", err))
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("image file is required"))
		return
	}
	defer file.Close()

	imageURL, err := app.uploadCampaignImage(r.Context(), file, campaign.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.store.Campaigns.SetImageURL(r.Context(), campaign.ID, imageURL); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]string{"image_url": imageURL}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// campaignFromURL resolves {campaignID} and writes the error response
// itself when resolution fails.
func (app *application) campaignFromURL(w http.ResponseWriter, r *http.Request) (*store.Campaign, error) {
	campaignID, err := strconv.ParseInt(chi.URLParam(r, "campaignID"), 10, 64)
	if err != nil {
		err = fmt.Errorf("invalid campaign id")
		app.badRequestResponse(w, r, err)
		return nil, err
	}

	campaign, err := app.store.Campaigns.GetByID(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			app.notFoundResponse(w, r, err)
		} else {
			app.internalServerError(w, r, err)
		}
		return nil, err
	}

	return campaign, nil
}
