package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/bidverse/bidverse/internal/autobid"
	"github.com/bidverse/bidverse/internal/models"
)

const (
	placeBidMaxAttempts = 3
	placeBidBackoff     = 50 * time.Millisecond
)

// BidsForAuction returns every bid on the auction ordered by value
// descending, ties broken by id for a stable order.
func (s *Store) BidsForAuction(ctx context.Context, auctionID int) ([]models.Bid, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, auction_id, bidder_id, value, created_at, is_winning
		 FROM bids WHERE auction_id = $1
		 ORDER BY value DESC, id DESC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids for auction %d: %w", auctionID, err)
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Value, &b.CreatedAt, &b.IsWinning); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

// PlaceBid is the bid ledger writer, shared by human bids and autobids.
// It retires the previous winning bid and inserts the new one under row-level
// locks, retrying a bounded number of times when the auction row was updated
// by a competing transaction. Validation failures are never retried.
func (s *Store) PlaceBid(ctx context.Context, auctionID, bidderID int, value decimal.Decimal) (*models.Bid, error) {
	var lastErr error
	for attempt := 1; attempt <= placeBidMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * placeBidBackoff):
			}
		}

		bid, err := s.tryPlaceBid(ctx, auctionID, bidderID, value)
		if err == nil {
			return bid, nil
		}
		if !errors.Is(err, autobid.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		log.WithFields(log.Fields{"auction": auctionID, "attempt": attempt}).
			Warn("concurrent update on auction, retrying bid")
	}
	return nil, lastErr
}

// tryPlaceBid is one attempt, in its own transaction (a savepoint when the
// store is already transactional). Lock order is fixed: auction row first,
// then the winning bid row.
func (s *Store) tryPlaceBid(ctx context.Context, auctionID, bidderID int, value decimal.Decimal) (*models.Bid, error) {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		ownerID  int
		status   string
		minPrice decimal.Decimal
		minStep  decimal.Decimal
		version  int
	)
	err = tx.QueryRow(ctx,
		"SELECT owner_id, status, minimum_price, min_step, version FROM auctions WHERE id = $1 FOR UPDATE",
		auctionID).Scan(&ownerID, &status, &minPrice, &minStep, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("auction %d not found", auctionID)
		}
		return nil, fmt.Errorf("failed to lock auction %d: %w", auctionID, err)
	}

	if status != models.StatusActive {
		return nil, autobid.ErrAuctionNotActive
	}
	if ownerID == bidderID {
		return nil, autobid.ErrOwnBid
	}

	var (
		winningID    int
		winningValue decimal.Decimal
		haveWinner   bool
	)
	err = tx.QueryRow(ctx,
		"SELECT id, value FROM bids WHERE auction_id = $1 AND is_winning FOR UPDATE",
		auctionID).Scan(&winningID, &winningValue)
	switch {
	case err == nil:
		haveWinner = true
	case errors.Is(err, pgx.ErrNoRows):
		// first bid on the auction
	default:
		return nil, fmt.Errorf("failed to lock winning bid: %w", err)
	}

	// Floor is current price plus step; with no bids yet the minimum price
	// stands in for the current price.
	floor := minPrice.Add(minStep)
	if haveWinner {
		floor = winningValue.Add(minStep)
	}
	if value.LessThanOrEqual(floor) {
		return nil, fmt.Errorf("%w: bid %s, floor %s",
			autobid.ErrBidBelowFloor, value.StringFixed(2), floor.StringFixed(2))
	}

	if haveWinner {
		if _, err := tx.Exec(ctx, "UPDATE bids SET is_winning = FALSE WHERE id = $1", winningID); err != nil {
			return nil, fmt.Errorf("failed to retire winning bid: %w", err)
		}
	}

	bid := &models.Bid{}
	err = tx.QueryRow(ctx,
		`INSERT INTO bids (auction_id, bidder_id, value, is_winning)
		 VALUES ($1, $2, $3, TRUE)
		 RETURNING id, auction_id, bidder_id, value, created_at, is_winning`,
		auctionID, bidderID, value).
		Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Value, &bid.CreatedAt, &bid.IsWinning)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}

	tag, err := tx.Exec(ctx,
		"UPDATE auctions SET last_bid = $1, version = version + 1 WHERE id = $2 AND version = $3",
		value, auctionID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update auction price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, autobid.ErrConcurrencyConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return bid, nil
}
