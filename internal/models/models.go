package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered user
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
}

// Auction represents an item under sale
type Auction struct {
	ID           int              `json:"id"`
	OwnerID      int              `json:"owner_id"`
	ItemName     string           `json:"item_name"`
	Description  string           `json:"description"`
	MinimumPrice decimal.Decimal  `json:"minimum_price"`
	MinStep      decimal.Decimal  `json:"min_step"` // minimum increment for the next bid
	Status       string           `json:"status"`   // "UPCOMING", "ACTIVE", "CLOSED"
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	LastBid      *decimal.Decimal `json:"last_bid,omitempty"` // cached current highest bid value
	Version      int              `json:"-"`                  // bumped on every bid, used for conflict detection
}

// Bid represents one accepted offer on an auction
type Bid struct {
	ID        int             `json:"id"`
	AuctionID int             `json:"auction_id"`
	BidderID  int             `json:"bidder_id"`
	Value     decimal.Decimal `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	IsWinning bool            `json:"is_winning"`
}

// AutoBid is a user's standing instruction to bid on one auction.
// Conditions holds the raw per-condition configuration keyed by condition
// name; values are whatever the user supplied (numbers, strings, lists, maps).
type AutoBid struct {
	ID                int              `json:"id"`
	UserID            int              `json:"user_id"`
	AuctionID         int              `json:"auction_id"`
	StartingBidAmount *decimal.Decimal `json:"starting_bid_amount,omitempty"`
	IncrementAmount   *decimal.Decimal `json:"increment_amount,omitempty"`
	MaxBidAmount      *decimal.Decimal `json:"max_bid_amount,omitempty"`
	IntervalMinutes   *int             `json:"interval_minutes,omitempty"`
	IsActive          bool             `json:"is_active"`
	Conditions        map[string]any   `json:"conditions"`
	LastRun           *time.Time       `json:"last_run,omitempty"`
	NextRun           *time.Time       `json:"next_run,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         *time.Time       `json:"updated_at,omitempty"`
}

// Notification is a message delivered to a user, optionally tied to an auction
type Notification struct {
	ID         int       `json:"id"`
	ReceiverID int       `json:"receiver_id"`
	SenderID   *int      `json:"sender_id,omitempty"`
	AuctionID  *int      `json:"auction_id,omitempty"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	Opened     bool      `json:"opened"`
}
