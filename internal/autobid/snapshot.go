package autobid

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bidverse/bidverse/internal/models"
)

// Clock supplies the evaluation timestamp. Injectable so decisions can be
// tested against a frozen time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Snapshot is the immutable per-evaluation view of one policy, its auction
// and the auction's bid history. All derived quantities are pure functions of
// the snapshot, so identical snapshots always yield identical decisions.
type Snapshot struct {
	Policy            *models.AutoBid
	Auction           *models.Auction
	User              *models.User
	CurrentHighestBid *models.Bid
	AllBids           []models.Bid // ordered by value descending
	Now               time.Time
	LastBidByPolicy   *models.Bid // most recent bid placed by the policy's user, nil if none
}

// CurrentPrice returns the highest bid's value, or the auction's minimum
// price if no bids exist.
func (s *Snapshot) CurrentPrice() decimal.Decimal {
	if s.CurrentHighestBid != nil {
		return s.CurrentHighestBid.Value
	}
	return s.Auction.MinimumPrice
}

// IsUserWinning reports whether the policy's user holds the highest bid.
func (s *Snapshot) IsUserWinning() bool {
	if s.CurrentHighestBid == nil {
		return false
	}
	return s.CurrentHighestBid.BidderID == s.User.ID
}

// IsOutbid reports whether the policy should consider itself outbid. A policy
// that has never placed a bid is treated as outbid (it must place the first
// one); otherwise the user is outbid whenever they are not winning.
func (s *Snapshot) IsOutbid() bool {
	if s.LastBidByPolicy == nil {
		return true
	}
	return !s.IsUserWinning()
}

// IsAuctionEnded reports whether the evaluation time is at or past the
// auction's end.
func (s *Snapshot) IsAuctionEnded() bool {
	return !s.Now.Before(s.Auction.ExpiresAt)
}

// MinutesUntilEnd returns the whole minutes between the evaluation time and
// the auction's end, negative after expiry.
func (s *Snapshot) MinutesUntilEnd() int64 {
	return int64(s.Auction.ExpiresAt.Sub(s.Now) / time.Minute)
}

// BidCountForPolicy returns how many bids in the history were placed by the
// policy's user.
func (s *Snapshot) BidCountForPolicy() int {
	count := 0
	for _, b := range s.AllBids {
		if b.BidderID == s.User.ID {
			count++
		}
	}
	return count
}

// LastBidByOthers returns the most recent bid (by timestamp) not placed by
// the policy's user, or nil if every bid is the user's own.
func (s *Snapshot) LastBidByOthers() *models.Bid {
	var latest *models.Bid
	for i := range s.AllBids {
		b := &s.AllBids[i]
		if b.BidderID == s.User.ID {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	return latest
}
