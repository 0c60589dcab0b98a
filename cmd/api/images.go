package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// uploadCampaignImage uploads a cover image to Cloudinary under a
// controlled public ID and returns the secure URL.
func (app *application) uploadCampaignImage(ctx context.Context, file io.Reader, campaignID int64) (string, error) {
	publicID := fmt.Sprintf("campaign_%d_%s", campaignID, uuid.NewString())

	resp, err := app.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:    "campaigns",
		PublicID:  publicID,
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}

	return resp.SecureURL, nil
}
