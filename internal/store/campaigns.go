package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Campaign is a fundraising campaign. Campaigns are never deleted, only
// deactivated; total_raised is an accumulator mutated exclusively by
// donations completing.
type Campaign struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	TargetAmount float64   `json:"target_amount"`
	TotalRaised  float64   `json:"total_raised"`
	ImageURL     *string   `json:"image_url"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CampaignsStore struct {
	db *pgxpool.Pool
}

func (s *CampaignsStore) Create(ctx context.Context, campaign *Campaign) error {
	query := `
		INSERT INTO campaigns (title, description, target_amount)
		VALUES ($1, $2, $3)
		RETURNING id, total_raised, is_active, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.db.QueryRow(
		ctx, query, campaign.Title, campaign.Description, campaign.TargetAmount,
	).Scan(&campaign.ID, &campaign.TotalRaised, &campaign.IsActive, &campaign.CreatedAt, &campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	return nil
}

func (s *CampaignsStore) GetByID(ctx context.Context, id int64) (*Campaign, error) {
	query := `
		SELECT id, title, description, target_amount, total_raised, image_url, is_active, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var campaign Campaign
	err := s.db.QueryRow(ctx, query, id).Scan(
		&campaign.ID, &campaign.Title, &campaign.Description, &campaign.TargetAmount,
		&campaign.TotalRaised, &campaign.ImageURL, &campaign.IsActive,
		&campaign.CreatedAt, &campaign.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &campaign, nil
}

// List returns campaigns newest first along with the total row count for
// pagination metadata.
func (s *CampaignsStore) List(ctx context.Context, onlyActive bool, limit, offset int) ([]Campaign, int, error) {
	query := `
		SELECT id, title, description, target_amount, total_raised, image_url, is_active, created_at, updated_at,
		       COUNT(*) OVER() AS total
		FROM campaigns
		WHERE (NOT $1::bool OR is_active = TRUE)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, onlyActive, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns []Campaign
		total     int
	)
	for rows.Next() {
		var c Campaign
		err := rows.Scan(
			&c.ID, &c.Title, &c.Description, &c.TargetAmount, &c.TotalRaised,
			&c.ImageURL, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &total,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	return campaigns, total, rows.Err()
}

// Update applies a partial update. total_raised is deliberately not an
// accepted column: it only moves when a donation completes.
func (s *CampaignsStore) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	allowed := map[string]bool{
		"title":         true,
		"description":   true,
		"target_amount": true,
		"is_active":     true,
	}

	setClauses := make([]string, 0, len(updates)+1)
	args := make([]interface{}, 0, len(updates)+1)
	i := 1
	for column, value := range updates {
		if !allowed[column] {
			return fmt.Errorf("column %q cannot be updated", column)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, i))
		args = append(args, value)
		i++
	}
	setClauses = append(setClauses, "updated_at = now()")

	query := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d", strings.Join(setClauses, ", "), i)
	args = append(args, id)

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *CampaignsStore) SetImageURL(ctx context.Context, id int64, url string) error {
	query := `UPDATE campaigns SET image_url = $1, updated_at = now() WHERE id = $2`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, url, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
