package mailer

import "embed"

const (
	FromName                = "Moyo Mzuri"
	maxRetries              = 3
	DonationReceiptTemplate = "donation_receipt.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
