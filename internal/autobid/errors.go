package autobid

import "errors"

// Sentinel errors shared between the engine and its storage implementation.
var (
	// ErrPolicyNotFound is returned when a policy id does not resolve.
	ErrPolicyNotFound = errors.New("autobid policy not found")

	// ErrConcurrencyConflict means the auction row changed under a competing
	// transaction; the ledger writer retries it a bounded number of times.
	ErrConcurrencyConflict = errors.New("auction updated by a competing transaction")

	// Validation failures from the bid ledger writer. Never retried.
	ErrAuctionNotActive = errors.New("auction is not active")
	ErrOwnBid           = errors.New("cannot bid on own auction")
	ErrBidBelowFloor    = errors.New("bid must exceed current price plus minimum step")
)
