package db

import (
	"context"
	"fmt"

	"github.com/bidverse/bidverse/internal/models"
)

const auctionColumns = "id, owner_id, item_name, description, minimum_price, min_step, status, created_at, expires_at, last_bid, version"

// CreateAuction inserts a new auction
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) (*models.Auction, error) {
	if !a.ExpiresAt.After(a.CreatedAt) {
		return nil, fmt.Errorf("auction end time must be after start time")
	}
	created := &models.Auction{}
	err := s.q.QueryRow(ctx,
		`INSERT INTO auctions (owner_id, item_name, description, minimum_price, min_step, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+auctionColumns,
		a.OwnerID, a.ItemName, a.Description, a.MinimumPrice, a.MinStep, a.Status, a.CreatedAt, a.ExpiresAt).
		Scan(&created.ID, &created.OwnerID, &created.ItemName, &created.Description,
			&created.MinimumPrice, &created.MinStep, &created.Status,
			&created.CreatedAt, &created.ExpiresAt, &created.LastBid, &created.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	return created, nil
}

// GetAuction retrieves an auction by id
func (s *Store) GetAuction(ctx context.Context, id int) (*models.Auction, error) {
	a := &models.Auction{}
	err := s.q.QueryRow(ctx,
		"SELECT "+auctionColumns+" FROM auctions WHERE id = $1", id).
		Scan(&a.ID, &a.OwnerID, &a.ItemName, &a.Description, &a.MinimumPrice, &a.MinStep,
			&a.Status, &a.CreatedAt, &a.ExpiresAt, &a.LastBid, &a.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %d: %w", id, err)
	}
	return a, nil
}

// ListAuctions retrieves all auctions, newest first
func (s *Store) ListAuctions(ctx context.Context) ([]models.Auction, error) {
	rows, err := s.q.Query(ctx,
		"SELECT "+auctionColumns+" FROM auctions ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		var a models.Auction
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.ItemName, &a.Description, &a.MinimumPrice,
			&a.MinStep, &a.Status, &a.CreatedAt, &a.ExpiresAt, &a.LastBid, &a.Version); err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return auctions, nil
}

// UpdateAuctionStatus applies an explicit status transition after checking it
// is allowed from the current state.
func (s *Store) UpdateAuctionStatus(ctx context.Context, id int, newStatus string) error {
	var current string
	err := s.q.QueryRow(ctx,
		"SELECT status FROM auctions WHERE id = $1 FOR UPDATE", id).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to get auction %d: %w", id, err)
	}
	if !models.IsValidStatusChange(current, newStatus) {
		return fmt.Errorf("invalid status change %s -> %s", current, newStatus)
	}
	_, err = s.q.Exec(ctx, "UPDATE auctions SET status = $1 WHERE id = $2", newStatus, id)
	if err != nil {
		return fmt.Errorf("failed to update auction status: %w", err)
	}
	return nil
}
