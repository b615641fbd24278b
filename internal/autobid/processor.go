package autobid

import (
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Processor turns a snapshot into a decision. It is pure apart from logging:
// no storage access, no clock reads beyond the snapshot, and the only
// non-determinism lives in the explicitly seeded randomized clauses.
type Processor struct {
	registry *Registry
}

func NewProcessor(registry *Registry) *Processor {
	return &Processor{registry: registry}
}

// Process evaluates one policy against one snapshot and returns exactly one
// decision. It never returns an error: a faulting condition is treated as a
// no-op and evaluation continues.
func (p *Processor) Process(snap *Snapshot) Decision {
	logger := log.WithFields(log.Fields{
		"autobid": snap.Policy.ID,
		"auction": snap.Auction.ID,
	})

	if snap.IsAuctionEnded() {
		logger.Warn("auction has ended, stopping autobid")
		return stopAutoBid("Auction has ended")
	}

	if !snap.Policy.IsActive {
		return skipBid("AutoBid is not active")
	}

	if snap.IsUserWinning() {
		logger.Info("user is already winning, skipping")
		return skipBid("User is already the highest bidder")
	}

	conditions := snap.Policy.Conditions
	if len(conditions) == 0 {
		logger.Warn("no conditions configured, skipping")
		return skipBid("No conditions configured")
	}

	for _, cond := range p.registry.Conditions() {
		value, present := conditions[cond.Name()]
		if !present {
			continue
		}
		if !safeShouldBid(cond, snap, value) {
			logger.WithField("condition", cond.Name()).Info("blocked by condition")
			return skipBid(fmt.Sprintf("Blocked by condition: %s", cond.Name()))
		}
	}

	amount, effects := p.calculateAmount(snap, conditions)
	reason := "All conditions met"

	if max := snap.Policy.MaxBidAmount; max != nil && amount.GreaterThan(*max) {
		logger.WithFields(log.Fields{"amount": amount, "max": *max}).
			Info("bid exceeds maximum, capping")
		amount = *max
		reason = fmt.Sprintf("Bid capped at maximum bid amount (%s)", max.StringFixed(2))
	}

	currentPrice := snap.CurrentPrice()
	if !amount.GreaterThan(currentPrice) {
		logger.WithFields(log.Fields{"amount": amount, "current_price": currentPrice}).
			Info("calculated bid is not higher than current price, skipping")
		return skipBid(fmt.Sprintf("Calculated bid (%s) is not higher than current price (%s)",
			amount.StringFixed(2), currentPrice.StringFixed(2)))
	}

	logger.WithFields(log.Fields{"amount": amount, "reason": reason}).Info("placing bid")
	return placeBid(amount, reason, effects)
}

// calculateAmount computes the base proposal and threads it through every
// configured modifier in registry order, collecting pending side effects
// along the way.
func (p *Processor) calculateAmount(snap *Snapshot, conditions map[string]any) (decimal.Decimal, []Effect) {
	currentPrice := snap.CurrentPrice()

	var amount decimal.Decimal
	switch {
	case snap.LastBidByPolicy == nil && snap.Policy.StartingBidAmount != nil:
		// First bid for this policy: the configured starting amount is the base.
		amount = *snap.Policy.StartingBidAmount
	case snap.Policy.IncrementAmount != nil:
		amount = currentPrice.Add(*snap.Policy.IncrementAmount)
	default:
		amount = currentPrice
	}

	var effects []Effect
	for _, cond := range p.registry.Conditions() {
		value, present := conditions[cond.Name()]
		if !present {
			continue
		}
		if modifier, ok := cond.(AmountModifier); ok {
			if modified := safeModify(modifier, cond, snap, value, amount); modified != nil {
				log.WithFields(log.Fields{
					"autobid":   snap.Policy.ID,
					"condition": cond.Name(),
					"from":      amount,
					"to":        *modified,
				}).Debug("modifier adjusted amount")
				amount = *modified
			}
		}
		if emitter, ok := cond.(EffectEmitter); ok {
			effects = append(effects, emitter.PendingEffects(snap, value, amount)...)
		}
	}
	return amount, effects
}
