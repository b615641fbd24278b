package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bidverse/bidverse/internal/autobid"
	"github.com/bidverse/bidverse/internal/models"
)

const autoBidColumns = `id, user_id, auction_id, starting_bid_amount, increment_amount,
	max_bid_amount, interval_minutes, is_active, conditions, last_run, next_run, created_at, updated_at`

func scanAutoBid(row pgx.Row) (*models.AutoBid, error) {
	ab := &models.AutoBid{}
	err := row.Scan(&ab.ID, &ab.UserID, &ab.AuctionID, &ab.StartingBidAmount, &ab.IncrementAmount,
		&ab.MaxBidAmount, &ab.IntervalMinutes, &ab.IsActive, &ab.Conditions,
		&ab.LastRun, &ab.NextRun, &ab.CreatedAt, &ab.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ab, nil
}

// CreateAutoBid inserts a new policy. The partial unique index enforces one
// active policy per (user, auction).
func (s *Store) CreateAutoBid(ctx context.Context, ab *models.AutoBid) (*models.AutoBid, error) {
	created, err := scanAutoBid(s.q.QueryRow(ctx,
		`INSERT INTO autobids (user_id, auction_id, starting_bid_amount, increment_amount,
			max_bid_amount, interval_minutes, is_active, conditions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+autoBidColumns,
		ab.UserID, ab.AuctionID, ab.StartingBidAmount, ab.IncrementAmount,
		ab.MaxBidAmount, ab.IntervalMinutes, ab.IsActive, ab.Conditions))
	if err != nil {
		return nil, fmt.Errorf("failed to create autobid: %w", err)
	}
	return created, nil
}

// GetAutoBid retrieves a policy by id
func (s *Store) GetAutoBid(ctx context.Context, id int) (*models.AutoBid, error) {
	ab, err := scanAutoBid(s.q.QueryRow(ctx,
		"SELECT "+autoBidColumns+" FROM autobids WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, autobid.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get autobid %d: %w", id, err)
	}
	return ab, nil
}

// ListAutoBidsForUser retrieves all of a user's policies, newest first
func (s *Store) ListAutoBidsForUser(ctx context.Context, userID int) ([]models.AutoBid, error) {
	rows, err := s.q.Query(ctx,
		"SELECT "+autoBidColumns+" FROM autobids WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list autobids: %w", err)
	}
	defer rows.Close()

	var policies []models.AutoBid
	for rows.Next() {
		ab, err := scanAutoBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan autobid: %w", err)
		}
		policies = append(policies, *ab)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return policies, nil
}

// SaveAutoBidRun persists the per-evaluation bookkeeping: last_run, next_run
// and the active flag.
func (s *Store) SaveAutoBidRun(ctx context.Context, policy *models.AutoBid) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE autobids SET last_run = $1, next_run = $2, is_active = $3, updated_at = NOW() WHERE id = $4",
		policy.LastRun, policy.NextRun, policy.IsActive, policy.ID)
	if err != nil {
		return fmt.Errorf("failed to update autobid %d: %w", policy.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return autobid.ErrPolicyNotFound
	}
	return nil
}

// SetAutoBidActive flips a policy's active flag, checking ownership.
func (s *Store) SetAutoBidActive(ctx context.Context, id, userID int, active bool) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE autobids SET is_active = $1, updated_at = NOW() WHERE id = $2 AND user_id = $3",
		active, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update autobid %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return autobid.ErrPolicyNotFound
	}
	return nil
}

// DueAutoBids returns every active policy whose next_run is null or has
// elapsed.
func (s *Store) DueAutoBids(ctx context.Context, now time.Time) ([]models.AutoBid, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+autoBidColumns+` FROM autobids
		 WHERE is_active AND (next_run IS NULL OR next_run < $1)
		 ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due autobids: %w", err)
	}
	defer rows.Close()

	var due []models.AutoBid
	for rows.Next() {
		ab, err := scanAutoBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan autobid: %w", err)
		}
		due = append(due, *ab)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return due, nil
}
