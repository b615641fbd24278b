package autobid

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"
)

// Amount-modifying clauses. Each consumes the previous modifier's output, so
// composition order matters; the registry fixes it. Gate defaults to "allow"
// for all of them.

var hundred = decimal.NewFromInt(100)

// oddOffsets are the offsets avoid_round_numbers picks from.
var oddOffsets = []int64{7, 11, 13, 17, 23, 29, 37, 47}

// min_increment: raise the proposal to at least currentPrice + value.
type minIncrement struct{}

func (minIncrement) Name() string { return "min_increment" }

func (minIncrement) ShouldBid(*Snapshot, any) bool { return true }

func (minIncrement) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	min, ok := asDecimal(value)
	if !ok {
		return nil
	}
	floor := snap.CurrentPrice().Add(min)
	if amount.GreaterThanOrEqual(floor) {
		return nil
	}
	return &floor
}

// max_increment: cap the proposal at currentPrice + value.
type maxIncrement struct{}

func (maxIncrement) Name() string { return "max_increment" }

func (maxIncrement) ShouldBid(*Snapshot, any) bool { return true }

func (maxIncrement) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	max, ok := asDecimal(value)
	if !ok {
		return nil
	}
	ceiling := snap.CurrentPrice().Add(max)
	if amount.LessThanOrEqual(ceiling) {
		return nil
	}
	return &ceiling
}

// increment_relative_to_price: proposal = currentPrice * (1 + fraction).
type incrementRelativeToPrice struct{}

func (incrementRelativeToPrice) Name() string { return "increment_relative_to_price" }

func (incrementRelativeToPrice) ShouldBid(*Snapshot, any) bool { return true }

func (incrementRelativeToPrice) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	fraction, ok := asDecimal(value)
	if !ok {
		return nil
	}
	price := snap.CurrentPrice()
	out := price.Add(price.Mul(fraction)).Round(0)
	return &out
}

// increment_step_after: absolute step tiers keyed by price threshold; the
// highest threshold <= currentPrice wins.
type incrementStepAfter struct{}

func (incrementStepAfter) Name() string { return "increment_step_after" }

func (incrementStepAfter) ShouldBid(*Snapshot, any) bool { return true }

func (incrementStepAfter) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	tiers, ok := asThresholds(value)
	if !ok {
		return nil
	}
	price := snap.CurrentPrice()
	step, ok := pickThreshold(tiers, price)
	if !ok {
		return nil
	}
	out := price.Add(step)
	return &out
}

// increment_percentage_after: like increment_step_after but the tier value is
// a fraction of the current price.
type incrementPercentageAfter struct{}

func (incrementPercentageAfter) Name() string { return "increment_percentage_after" }

func (incrementPercentageAfter) ShouldBid(*Snapshot, any) bool { return true }

func (incrementPercentageAfter) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	tiers, ok := asThresholds(value)
	if !ok {
		return nil
	}
	price := snap.CurrentPrice()
	fraction, ok := pickThreshold(tiers, price)
	if !ok {
		return nil
	}
	out := price.Add(price.Mul(fraction)).Round(0)
	return &out
}

// counter_bid_factor: answer the opponent's last raise multiplied by a
// factor. Needs at least two bids to measure the raise.
type counterBidFactor struct{}

func (counterBidFactor) Name() string { return "counter_bid_factor" }

func (counterBidFactor) ShouldBid(*Snapshot, any) bool { return true }

func (counterBidFactor) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	factor, ok := asDecimal(value)
	if !ok {
		return nil
	}
	if len(snap.AllBids) < 2 {
		return nil
	}
	opponentRaise := snap.AllBids[0].Value.Sub(snap.AllBids[1].Value)
	counter := opponentRaise.Mul(factor).Round(0)
	out := snap.CurrentPrice().Add(counter)
	return &out
}

// last_minute_rush: inside the final minute, amplify whatever increment the
// earlier modifiers produced by 1.5x.
type lastMinuteRush struct{}

func (lastMinuteRush) Name() string { return "last_minute_rush" }

func (lastMinuteRush) ShouldBid(*Snapshot, any) bool { return true }

func (lastMinuteRush) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	if !asBool(value) {
		return nil
	}
	if snap.MinutesUntilEnd() >= 1 {
		return nil
	}
	price := snap.CurrentPrice()
	increment := amount.Sub(price)
	out := price.Add(increment.Mul(decimal.NewFromFloat(1.5)))
	return &out
}

// avoid_round_numbers: nudge proposals off multiples of 100 with a small odd
// offset so the bid does not land on a conspicuous figure.
type avoidRoundNumbers struct {
	rng *rand.Rand
}

func (avoidRoundNumbers) Name() string { return "avoid_round_numbers" }

func (avoidRoundNumbers) ShouldBid(*Snapshot, any) bool { return true }

func (c avoidRoundNumbers) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	if !asBool(value) {
		return nil
	}
	rounded := amount.Round(0)
	if !rounded.Mod(hundred).IsZero() {
		return nil
	}
	offset := oddOffsets[c.rng.Intn(len(oddOffsets))]
	out := rounded.Add(decimal.NewFromInt(offset))
	return &out
}

// randomize_increment: perturb the increment by a uniform factor in
// [-10%, +10%] so the policy's raises are not perfectly predictable.
type randomizeIncrement struct {
	rng *rand.Rand
}

func (randomizeIncrement) Name() string { return "randomize_increment" }

func (randomizeIncrement) ShouldBid(*Snapshot, any) bool { return true }

func (c randomizeIncrement) ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal {
	if !asBool(value) {
		return nil
	}
	increment := amount.Sub(snap.CurrentPrice())
	factor := c.rng.Float64()*0.2 - 0.1
	noise := increment.Mul(decimal.NewFromFloat(factor))
	out := amount.Add(noise).Round(0)
	return &out
}

// notify_on_action: never blocks and never changes the amount; it queues a
// notification describing the pending bid, dispatched by the executor after
// the bid commits.
type notifyOnAction struct{}

func (notifyOnAction) Name() string { return "notify_on_action" }

func (notifyOnAction) ShouldBid(*Snapshot, any) bool { return true }

func (notifyOnAction) PendingEffects(snap *Snapshot, value any, amount decimal.Decimal) []Effect {
	if !asBoolish(value) {
		return nil
	}
	return []Effect{{
		Title: "AutoBid Action",
		Message: fmt.Sprintf("Your AutoBid is about to place a bid of %s on '%s'.",
			amount.StringFixed(2), snap.Auction.ItemName),
	}}
}
