package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DonationPending   = "pending"
	DonationCompleted = "completed"
	DonationFailed    = "failed"
)

// Donation is one payment attempt. Lifecycle: pending -> completed
// (receipt set, completed_at stamped, campaign total incremented once)
// or pending -> failed. Both terminal states are final.
type Donation struct {
	ID                 int64      `json:"id"`
	CampaignID         int64      `json:"campaign_id"`
	CampaignTitle      string     `json:"campaign_title,omitempty"`
	Amount             float64    `json:"amount"`
	PhoneNumber        string     `json:"phone_number"`
	Email              *string    `json:"email,omitempty"`
	MerchantRequestID  *string    `json:"merchant_request_id"`
	CheckoutRequestID  *string    `json:"checkout_request_id"`
	MpesaReceiptNumber *string    `json:"mpesa_receipt_number"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at"`
}

func (d *Donation) IsFinal() bool {
	return d.Status == DonationCompleted || d.Status == DonationFailed
}

type DonationsStore struct {
	db *pgxpool.Pool
}

func (s *DonationsStore) Create(ctx context.Context, donation *Donation) error {
	query := `
		INSERT INTO donations (campaign_id, amount, phone_number, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.db.QueryRow(
		ctx, query, donation.CampaignID, donation.Amount, donation.PhoneNumber, donation.Email,
	).Scan(&donation.ID, &donation.Status, &donation.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert donation: %w", err)
	}

	return nil
}

const donationColumns = `
	d.id, d.campaign_id, d.amount, d.phone_number, d.email,
	d.merchant_request_id, d.checkout_request_id, d.mpesa_receipt_number,
	d.status, d.created_at, d.completed_at
`

func scanDonation(row pgx.Row) (*Donation, error) {
	var d Donation
	err := row.Scan(
		&d.ID, &d.CampaignID, &d.Amount, &d.PhoneNumber, &d.Email,
		&d.MerchantRequestID, &d.CheckoutRequestID, &d.MpesaReceiptNumber,
		&d.Status, &d.CreatedAt, &d.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *DonationsStore) GetByID(ctx context.Context, id int64) (*Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations d WHERE d.id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return scanDonation(s.db.QueryRow(ctx, query, id))
}

func (s *DonationsStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*Donation, error) {
	query := `SELECT ` + donationColumns + ` FROM donations d WHERE d.checkout_request_id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return scanDonation(s.db.QueryRow(ctx, query, checkoutRequestID))
}

// AttachCheckoutRequest records the gateway's tracking identifiers on a
// freshly initiated attempt.
func (s *DonationsStore) AttachCheckoutRequest(ctx context.Context, id int64, merchantRequestID, checkoutRequestID string) error {
	query := `
		UPDATE donations
		SET merchant_request_id = $2, checkout_request_id = $3
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, id, merchantRequestID, checkoutRequestID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Complete transitions a pending donation to completed and increments the
// owning campaign's total in one transaction. The transition is a
// conditional update on status, so a concurrent callback and manual
// completion race safely: exactly one caller wins, the other gets
// ErrAlreadyFinal and mutates nothing. The increment is a relative delta,
// never a read-modify-write, so concurrent completions of different
// donations on the same campaign cannot lose updates.
func (s *DonationsStore) Complete(ctx context.Context, id int64, receiptNumber string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		campaignID int64
		amount     float64
	)
	err = tx.QueryRow(ctx, `
		UPDATE donations
		SET status = 'completed', mpesa_receipt_number = $2, completed_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING campaign_id, amount
	`, id, receiptNumber).Scan(&campaignID, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.finalStateError(ctx, id)
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE campaigns
		SET total_raised = total_raised + $2, updated_at = now()
		WHERE id = $1
	`, campaignID, amount)
	if err != nil {
		return fmt.Errorf("failed to increment campaign total: %w", err)
	}

	return tx.Commit(ctx)
}

// MarkFailed transitions a pending donation to failed. Terminal states
// are never overwritten.
func (s *DonationsStore) MarkFailed(ctx context.Context, id int64) error {
	query := `UPDATE donations SET status = 'failed' WHERE id = $1 AND status = 'pending'`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.finalStateError(ctx, id)
	}

	return nil
}

// finalStateError distinguishes "no such donation" from "already
// terminal" after a conditional update matched nothing.
func (s *DonationsStore) finalStateError(ctx context.Context, id int64) error {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM donations WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrAlreadyFinal
}

func (s *DonationsStore) List(ctx context.Context, status string, limit, offset int) ([]Donation, int, error) {
	query := `
		SELECT ` + donationColumns + `, c.title, COUNT(*) OVER() AS total
		FROM donations d
		JOIN campaigns c ON c.id = d.campaign_id
		WHERE ($1 = '' OR d.status = $1)
		ORDER BY d.created_at DESC
		LIMIT $2 OFFSET $3
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query donations: %w", err)
	}
	defer rows.Close()

	var (
		donations []Donation
		total     int
	)
	for rows.Next() {
		var d Donation
		err := rows.Scan(
			&d.ID, &d.CampaignID, &d.Amount, &d.PhoneNumber, &d.Email,
			&d.MerchantRequestID, &d.CheckoutRequestID, &d.MpesaReceiptNumber,
			&d.Status, &d.CreatedAt, &d.CompletedAt, &d.CampaignTitle, &total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan donation row: %w", err)
		}
		donations = append(donations, d)
	}

	return donations, total, rows.Err()
}
