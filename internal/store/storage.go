package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyFinal means the donation is already completed or failed.
	// Both the callback path and manual reconciliation treat it as
	// "someone else won the race, do nothing".
	ErrAlreadyFinal      = errors.New("donation already in a terminal state")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	Campaigns interface {
		Create(context.Context, *Campaign) error
		GetByID(context.Context, int64) (*Campaign, error)
		List(ctx context.Context, onlyActive bool, limit, offset int) ([]Campaign, int, error)
		Update(context.Context, int64, map[string]interface{}) error
		SetImageURL(context.Context, int64, string) error
	}
	Donations interface {
		Create(context.Context, *Donation) error
		GetByID(context.Context, int64) (*Donation, error)
		GetByCheckoutRequestID(context.Context, string) (*Donation, error)
		AttachCheckoutRequest(ctx context.Context, id int64, merchantRequestID, checkoutRequestID string) error
		Complete(ctx context.Context, id int64, receiptNumber string) error
		MarkFailed(context.Context, int64) error
		List(ctx context.Context, status string, limit, offset int) ([]Donation, int, error)
	}
}

func NewStorage(db *pgxpool.Pool) Storage {
	return Storage{
		Campaigns: &CampaignsStore{db},
		Donations: &DonationsStore{db},
	}
}
