package autobid

import (
	"math/rand"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Condition is one named policy clause. ShouldBid gates whether bidding is
// allowed this round; a condition may additionally implement AmountModifier
// and/or EffectEmitter. A condition whose name is absent from the policy's
// condition map is never invoked for that policy.
type Condition interface {
	Name() string
	ShouldBid(snap *Snapshot, value any) bool
}

// AmountModifier adjusts a proposed bid amount. A nil return means "no
// change"; a non-nil return replaces the proposal for the next modifier.
type AmountModifier interface {
	ModifyAmount(snap *Snapshot, value any, amount decimal.Decimal) *decimal.Decimal
}

// EffectEmitter contributes pending side effects to a PlaceBid decision.
// Effects are dispatched by the executor after the bid commits, keeping the
// decision computation itself side-effect free.
type EffectEmitter interface {
	PendingEffects(snap *Snapshot, value any, amount decimal.Decimal) []Effect
}

// Registry holds every known condition in a fixed declaration order. Gates
// and modifiers are always visited in this order, so sequential modifier
// composition is deterministic regardless of how the policy's condition map
// iterates.
type Registry struct {
	conditions []Condition
}

// NewRegistry builds the full condition set. rng feeds the randomized
// clauses; pass a seeded source in tests to pin their output.
func NewRegistry(rng *rand.Rand) *Registry {
	return &Registry{conditions: []Condition{
		activeHours{},
		onlyIfPriceAbove{},
		onlyIfPriceBelow{},
		ifOutbid{},
		maxTotalBids{},
		nearEndMinutes{},
		pauseUntil{},
		priceRatioToValue{},
		targetUserIDs{},
		avoidUserIDs{},
		ifNoActivityFor{},
		reactDelayMinutes{},
		minIncrement{},
		maxIncrement{},
		incrementRelativeToPrice{},
		incrementStepAfter{},
		incrementPercentageAfter{},
		counterBidFactor{},
		lastMinuteRush{},
		avoidRoundNumbers{rng: rng},
		randomizeIncrement{rng: rng},
		notifyOnAction{},
	}}
}

// Conditions returns the registered conditions in evaluation order.
func (r *Registry) Conditions() []Condition {
	return r.conditions
}

// safeShouldBid runs a gate, treating a panic as "allow" so one broken
// condition cannot take down the whole evaluation.
func safeShouldBid(c Condition, snap *Snapshot, value any) (allowed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{"condition": c.Name(), "panic": rec}).
				Error("condition gate panicked, failing open")
			allowed = true
		}
	}()
	return c.ShouldBid(snap, value)
}

// safeModify runs a modifier, treating a panic as "no change".
func safeModify(m AmountModifier, c Condition, snap *Snapshot, value any, amount decimal.Decimal) (out *decimal.Decimal) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{"condition": c.Name(), "panic": rec}).
				Error("condition modifier panicked, leaving amount unchanged")
			out = nil
		}
	}()
	return m.ModifyAmount(snap, value, amount)
}

// Condition values come straight out of the policy's JSON map, so every
// clause decodes its own entry through the typed accessors below rather than
// a global schema. Unknown shapes fall back per-clause (open or closed).

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case decimal.Decimal:
		return n, true
	}
	return decimal.Decimal{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// asBoolish accepts bools and their string spellings; used by clauses whose
// reference config allowed "true"/"false" strings.
func asBoolish(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	}
	return false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asIntList accepts a JSON array and keeps only the numeric entries.
func asIntList(v any) ([]int, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		if f, ok := asFloat(item); ok {
			out = append(out, int(f))
		}
	}
	return out, true
}

type threshold struct {
	at    decimal.Decimal
	value decimal.Decimal
}

// asThresholds decodes a JSON object of price-threshold -> number, sorted by
// threshold descending so the first entry <= currentPrice wins.
func asThresholds(v any) ([]threshold, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	out := make([]threshold, 0, len(m))
	for key, raw := range m {
		at, err := decimal.NewFromString(key)
		if err != nil {
			continue
		}
		val, ok := asDecimal(raw)
		if !ok {
			continue
		}
		out = append(out, threshold{at: at, value: val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].at.GreaterThan(out[j].at) })
	return out, true
}

// pickThreshold returns the value of the highest threshold <= price.
func pickThreshold(entries []threshold, price decimal.Decimal) (decimal.Decimal, bool) {
	for _, e := range entries {
		if price.GreaterThanOrEqual(e.at) {
			return e.value, true
		}
	}
	return decimal.Decimal{}, false
}
