package autobid

import (
	"strconv"
	"strings"
	"time"

	"github.com/bidverse/bidverse/internal/models"
)

// Gate-only clauses. Unless noted otherwise a value of the wrong shape fails
// open: the gate allows bidding rather than silently freezing the policy.

// active_hours: bid only during the listed hours of the day.
type activeHours struct{}

func (activeHours) Name() string { return "active_hours" }

func (activeHours) ShouldBid(snap *Snapshot, value any) bool {
	hours, ok := asIntList(value)
	if !ok {
		return true
	}
	current := snap.Now.Hour()
	for _, h := range hours {
		if h == current {
			return true
		}
	}
	return false
}

// only_if_price_above: bid only once the price has reached a minimum.
type onlyIfPriceAbove struct{}

func (onlyIfPriceAbove) Name() string { return "only_if_price_above" }

func (onlyIfPriceAbove) ShouldBid(snap *Snapshot, value any) bool {
	min, ok := asDecimal(value)
	if !ok {
		return true
	}
	return snap.CurrentPrice().GreaterThanOrEqual(min)
}

// only_if_price_below: bid only while the price stays under a maximum.
type onlyIfPriceBelow struct{}

func (onlyIfPriceBelow) Name() string { return "only_if_price_below" }

func (onlyIfPriceBelow) ShouldBid(snap *Snapshot, value any) bool {
	max, ok := asDecimal(value)
	if !ok {
		return true
	}
	return snap.CurrentPrice().LessThan(max)
}

// if_outbid: bid only when the user has been outbid.
type ifOutbid struct{}

func (ifOutbid) Name() string { return "if_outbid" }

func (ifOutbid) ShouldBid(snap *Snapshot, value any) bool {
	if !asBool(value) {
		return true
	}
	return snap.IsOutbid()
}

// max_total_bids: cap on how many bids this policy may place in total.
type maxTotalBids struct{}

func (maxTotalBids) Name() string { return "max_total_bids" }

func (maxTotalBids) ShouldBid(snap *Snapshot, value any) bool {
	max, ok := asFloat(value)
	if !ok {
		return true
	}
	return snap.BidCountForPolicy() < int(max)
}

// near_end_minutes: activate only within the last N minutes of the auction.
type nearEndMinutes struct{}

func (nearEndMinutes) Name() string { return "near_end_minutes" }

func (nearEndMinutes) ShouldBid(snap *Snapshot, value any) bool {
	threshold, ok := asFloat(value)
	if !ok {
		return true
	}
	return float64(snap.MinutesUntilEnd()) <= threshold
}

// pause_until: hold off bidding until a fixed timestamp.
type pauseUntil struct{}

func (pauseUntil) Name() string { return "pause_until" }

func (pauseUntil) ShouldBid(snap *Snapshot, value any) bool {
	raw, ok := asString(value)
	if !ok {
		return true
	}
	until, err := parseTimestamp(raw)
	if err != nil {
		return true
	}
	return snap.Now.After(until)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// price_ratio_to_value: stop once the price exceeds minimumPrice * ratio.
type priceRatioToValue struct{}

func (priceRatioToValue) Name() string { return "price_ratio_to_value" }

func (priceRatioToValue) ShouldBid(snap *Snapshot, value any) bool {
	ratio, ok := asDecimal(value)
	if !ok {
		return true
	}
	maxAllowed := snap.Auction.MinimumPrice.Mul(ratio)
	return snap.CurrentPrice().LessThanOrEqual(maxAllowed)
}

// target_user_ids: only compete against the listed users. With no bid yet
// there is nobody to compete with, so the gate stays closed.
type targetUserIDs struct{}

func (targetUserIDs) Name() string { return "target_user_ids" }

func (targetUserIDs) ShouldBid(snap *Snapshot, value any) bool {
	targets, ok := asIntList(value)
	if !ok {
		return true
	}
	if snap.CurrentHighestBid == nil {
		return false
	}
	for _, id := range targets {
		if id == snap.CurrentHighestBid.BidderID {
			return true
		}
	}
	return false
}

// avoid_user_ids: never bid against the listed users.
type avoidUserIDs struct{}

func (avoidUserIDs) Name() string { return "avoid_user_ids" }

func (avoidUserIDs) ShouldBid(snap *Snapshot, value any) bool {
	avoid, ok := asIntList(value)
	if !ok {
		return true
	}
	if snap.CurrentHighestBid == nil {
		return true
	}
	for _, id := range avoid {
		if id == snap.CurrentHighestBid.BidderID {
			return false
		}
	}
	return true
}

// if_no_activity_for_dd_hh_mm: bid only after a quiet period, given as
// "days_hours_minutes" (e.g. "2_3_30"). A malformed value fails closed:
// ignoring it could turn a deliberately patient policy into an aggressive one.
type ifNoActivityFor struct{}

func (ifNoActivityFor) Name() string { return "if_no_activity_for_dd_hh_mm" }

func (ifNoActivityFor) ShouldBid(snap *Snapshot, value any) bool {
	raw, ok := asString(value)
	if !ok {
		return false
	}
	quiet, err := parseQuietPeriod(raw)
	if err != nil {
		return false
	}
	latest := mostRecentBid(snap)
	if latest == nil {
		return true
	}
	return snap.Now.Sub(latest.CreatedAt) >= quiet
}

func parseQuietPeriod(s string) (time.Duration, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 {
		return 0, strconv.ErrSyntax
	}
	days, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, err
	}
	hours, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute, nil
}

// react_delay_minutes: wait N minutes after being outbid before reacting,
// which makes the policy look less mechanical.
type reactDelayMinutes struct{}

func (reactDelayMinutes) Name() string { return "react_delay_minutes" }

func (reactDelayMinutes) ShouldBid(snap *Snapshot, value any) bool {
	delay, ok := asFloat(value)
	if !ok {
		if raw, isStr := asString(value); isStr {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return true
			}
			delay = parsed
		} else {
			return true
		}
	}
	if delay <= 0 {
		return true
	}
	competing := snap.LastBidByOthers()
	if competing == nil {
		return true
	}
	elapsed := snap.Now.Sub(competing.CreatedAt)
	return elapsed >= time.Duration(delay*float64(time.Minute))
}

// mostRecentBid returns the bid with the latest timestamp, regardless of
// bidder, or nil when the auction has no bids.
func mostRecentBid(snap *Snapshot) *models.Bid {
	var latest *models.Bid
	for i := range snap.AllBids {
		b := &snap.AllBids[i]
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			latest = b
		}
	}
	return latest
}
