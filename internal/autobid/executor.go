package autobid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/bidverse/bidverse/internal/models"
)

// Store is the persistence surface the executor runs against. The db package
// provides the real implementation; tests use an in-memory fake.
type Store interface {
	// InTx runs fn inside a transaction, passing a Store bound to it.
	InTx(ctx context.Context, fn func(Store) error) error

	GetAutoBid(ctx context.Context, id int) (*models.AutoBid, error)
	GetAuction(ctx context.Context, id int) (*models.Auction, error)
	GetUser(ctx context.Context, id int) (*models.User, error)
	// BidsForAuction returns every bid on the auction ordered by value descending.
	BidsForAuction(ctx context.Context, auctionID int) ([]models.Bid, error)
	// PlaceBid inserts a bid through the ledger writer (locking, winning-flag
	// flip, cached price update, bounded retry on conflict).
	PlaceBid(ctx context.Context, auctionID, bidderID int, value decimal.Decimal) (*models.Bid, error)
	// SaveAutoBidRun persists the policy's LastRun, NextRun and IsActive.
	SaveAutoBidRun(ctx context.Context, policy *models.AutoBid) error
	// DueAutoBids returns every active policy whose NextRun is null or past.
	DueAutoBids(ctx context.Context, now time.Time) ([]models.AutoBid, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// OutcomeKind classifies the result of executing one policy.
type OutcomeKind int

const (
	OutcomeBidPlaced OutcomeKind = iota
	OutcomeSkipped
	OutcomeStopped
	OutcomeNotFound
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeBidPlaced:
		return "bid_placed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeStopped:
		return "stopped"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ExecutionOutcome is the externally visible result of one evaluation.
type ExecutionOutcome struct {
	Kind      OutcomeKind     `json:"kind"`
	AutoBidID int             `json:"autobid_id"`
	AuctionID int             `json:"auction_id,omitempty"`
	UserID    int             `json:"user_id,omitempty"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	BidID     int             `json:"bid_id,omitempty"`
	Reason    string          `json:"reason"`
}

// Summary aggregates one batch run.
type Summary struct {
	Results []ExecutionOutcome `json:"results"`
	Placed  int                `json:"placed"`
	Skipped int                `json:"skipped"`
	Stopped int                `json:"stopped"`
	Errored int                `json:"errored"`
}

// Executor drives policy evaluations against storage: it builds the snapshot,
// asks the processor for a decision and persists the consequence.
type Executor struct {
	store     Store
	processor *Processor
	clock     Clock
}

func NewExecutor(store Store, processor *Processor, clock Clock) *Executor {
	return &Executor{store: store, processor: processor, clock: clock}
}

// Evaluate runs a single policy in its own transaction. Policy bookkeeping
// (LastRun/NextRun, and IsActive on a stop) is persisted in every branch,
// including a failed ledger write.
func (e *Executor) Evaluate(ctx context.Context, policyID int) ExecutionOutcome {
	outcome := ExecutionOutcome{AutoBidID: policyID}

	err := e.store.InTx(ctx, func(s Store) error {
		policy, err := s.GetAutoBid(ctx, policyID)
		if err != nil {
			if errors.Is(err, ErrPolicyNotFound) {
				outcome = ExecutionOutcome{Kind: OutcomeNotFound, AutoBidID: policyID, Reason: "AutoBid not found"}
				return nil
			}
			return fmt.Errorf("load autobid %d: %w", policyID, err)
		}

		snap, err := e.buildSnapshot(ctx, s, policy)
		if err != nil {
			return err
		}

		decision := e.processor.Process(snap)

		policy.LastRun = &snap.Now
		if policy.IntervalMinutes != nil {
			next := snap.Now.Add(time.Duration(*policy.IntervalMinutes) * time.Minute)
			policy.NextRun = &next
		}

		outcome = ExecutionOutcome{
			AutoBidID: policy.ID,
			AuctionID: policy.AuctionID,
			UserID:    policy.UserID,
			Reason:    decision.Reason,
		}

		switch decision.Kind {
		case DecisionPlaceBid:
			bid, err := s.PlaceBid(ctx, policy.AuctionID, policy.UserID, decision.Amount)
			if err != nil {
				log.WithFields(log.Fields{"autobid": policy.ID, "auction": policy.AuctionID}).
					WithError(err).Error("ledger write failed")
				outcome.Kind = OutcomeError
				outcome.Reason = fmt.Sprintf("Failed to place bid: %v", err)
			} else {
				outcome.Kind = OutcomeBidPlaced
				outcome.Amount = decision.Amount
				outcome.BidID = bid.ID
				e.dispatchEffects(ctx, s, policy, decision.Effects)
			}
		case DecisionSkipBid:
			outcome.Kind = OutcomeSkipped
		case DecisionStopAutoBid:
			policy.IsActive = false
			outcome.Kind = OutcomeStopped
		}

		return s.SaveAutoBidRun(ctx, policy)
	})
	if err != nil {
		log.WithField("autobid", policyID).WithError(err).Error("autobid evaluation failed")
		return ExecutionOutcome{Kind: OutcomeError, AutoBidID: policyID, Reason: err.Error()}
	}
	return outcome
}

// RunDue executes every active policy whose next run has elapsed. Policies
// are independent: a failure or panic on one never stops the rest.
func (e *Executor) RunDue(ctx context.Context) Summary {
	now := e.clock.Now()
	due, err := e.store.DueAutoBids(ctx, now)
	if err != nil {
		log.WithError(err).Error("failed to load due autobids")
		return Summary{}
	}

	var summary Summary
	for _, policy := range due {
		outcome := e.evaluateGuarded(ctx, policy.ID)
		summary.Results = append(summary.Results, outcome)
		switch outcome.Kind {
		case OutcomeBidPlaced:
			summary.Placed++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeStopped:
			summary.Stopped++
		case OutcomeError:
			summary.Errored++
		}
	}

	log.WithFields(log.Fields{
		"total":   len(summary.Results),
		"placed":  summary.Placed,
		"skipped": summary.Skipped,
		"stopped": summary.Stopped,
		"errors":  summary.Errored,
	}).Info("autobid batch completed")
	return summary
}

func (e *Executor) evaluateGuarded(ctx context.Context, policyID int) (outcome ExecutionOutcome) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{"autobid": policyID, "panic": rec}).
				Error("autobid evaluation panicked")
			outcome = ExecutionOutcome{
				Kind:      OutcomeError,
				AutoBidID: policyID,
				Reason:    fmt.Sprintf("evaluation panicked: %v", rec),
			}
		}
	}()
	return e.Evaluate(ctx, policyID)
}

// buildSnapshot assembles the immutable per-evaluation view: policy, auction,
// owner, bid history ordered by value descending, and the evaluation time.
func (e *Executor) buildSnapshot(ctx context.Context, s Store, policy *models.AutoBid) (*Snapshot, error) {
	auction, err := s.GetAuction(ctx, policy.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("load auction %d: %w", policy.AuctionID, err)
	}
	user, err := s.GetUser(ctx, policy.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", policy.UserID, err)
	}
	bids, err := s.BidsForAuction(ctx, policy.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("load bids for auction %d: %w", policy.AuctionID, err)
	}

	snap := &Snapshot{
		Policy:  policy,
		Auction: auction,
		User:    user,
		AllBids: bids,
		Now:     e.clock.Now(),
	}
	if len(bids) > 0 {
		snap.CurrentHighestBid = &bids[0]
	}
	for i := range bids {
		if bids[i].BidderID == policy.UserID {
			snap.LastBidByPolicy = &bids[i]
			break
		}
	}
	return snap, nil
}

// dispatchEffects turns the decision's pending effects into notification
// records. Delivery failure never affects the bid that was just placed.
func (e *Executor) dispatchEffects(ctx context.Context, s Store, policy *models.AutoBid, effects []Effect) {
	for _, effect := range effects {
		n := &models.Notification{
			ReceiverID: policy.UserID,
			AuctionID:  &policy.AuctionID,
			Title:      effect.Title,
			Message:    effect.Message,
			CreatedAt:  e.clock.Now(),
		}
		if err := s.CreateNotification(ctx, n); err != nil {
			log.WithFields(log.Fields{"autobid": policy.ID, "user": policy.UserID}).
				WithError(err).Error("failed to enqueue notification")
		}
	}
}
