package autobid

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bidverse/bidverse/internal/models"
)

func TestRegistry_Order(t *testing.T) {
	registry := NewRegistry(rand.New(rand.NewSource(1)))
	conditions := registry.Conditions()

	expected := []string{
		"active_hours",
		"only_if_price_above",
		"only_if_price_below",
		"if_outbid",
		"max_total_bids",
		"near_end_minutes",
		"pause_until",
		"price_ratio_to_value",
		"target_user_ids",
		"avoid_user_ids",
		"if_no_activity_for_dd_hh_mm",
		"react_delay_minutes",
		"min_increment",
		"max_increment",
		"increment_relative_to_price",
		"increment_step_after",
		"increment_percentage_after",
		"counter_bid_factor",
		"last_minute_rush",
		"avoid_round_numbers",
		"randomize_increment",
		"notify_on_action",
	}
	if len(conditions) != len(expected) {
		t.Fatalf("expected %d conditions, got %d", len(expected), len(conditions))
	}
	for i, name := range expected {
		if conditions[i].Name() != name {
			t.Errorf("position %d: expected %s, got %s", i, name, conditions[i].Name())
		}
	}
}

func TestGates(t *testing.T) {
	competing := []models.Bid{
		{ID: 2, BidderID: 20, Value: dec(150), CreatedAt: testTime.Add(-5 * time.Minute)},
		{ID: 1, BidderID: 30, Value: dec(120), CreatedAt: testTime.Add(-time.Hour)},
	}

	tests := []struct {
		name      string
		condition Condition
		value     any
		setup     func(*Snapshot)
		want      bool
	}{
		{
			name:      "ActiveHours_CurrentHourListed",
			condition: activeHours{},
			value:     []any{float64(11), float64(12)},
			want:      true,
		},
		{
			name:      "ActiveHours_CurrentHourNotListed",
			condition: activeHours{},
			value:     []any{float64(3), float64(4)},
			want:      false,
		},
		{
			name:      "ActiveHours_BadShapeFailsOpen",
			condition: activeHours{},
			value:     "not a list",
			want:      true,
		},
		{
			name:      "PriceAbove_Reached",
			condition: onlyIfPriceAbove{},
			value:     float64(150),
			want:      true,
		},
		{
			name:      "PriceAbove_NotReached",
			condition: onlyIfPriceAbove{},
			value:     float64(200),
			want:      false,
		},
		{
			name:      "PriceBelow_StillUnder",
			condition: onlyIfPriceBelow{},
			value:     float64(200),
			want:      true,
		},
		{
			name:      "PriceBelow_AtLimit",
			condition: onlyIfPriceBelow{},
			value:     float64(150),
			want:      false,
		},
		{
			name:      "IfOutbid_UserOutbid",
			condition: ifOutbid{},
			value:     true,
			want:      true,
		},
		{
			name:      "IfOutbid_UserWinning",
			condition: ifOutbid{},
			value:     true,
			setup: func(snap *Snapshot) {
				snap.AllBids[0].BidderID = 10
				snap.CurrentHighestBid = &snap.AllBids[0]
				snap.LastBidByPolicy = &snap.AllBids[0]
			},
			want: false,
		},
		{
			name:      "IfOutbid_DisabledAllows",
			condition: ifOutbid{},
			value:     false,
			setup: func(snap *Snapshot) {
				snap.AllBids[0].BidderID = 10
				snap.CurrentHighestBid = &snap.AllBids[0]
			},
			want: true,
		},
		{
			name:      "MaxTotalBids_UnderCap",
			condition: maxTotalBids{},
			value:     float64(3),
			want:      true,
		},
		{
			name:      "MaxTotalBids_AtCap",
			condition: maxTotalBids{},
			value:     float64(1),
			setup: func(snap *Snapshot) {
				snap.AllBids[1].BidderID = 10
			},
			want: false,
		},
		{
			name:      "NearEnd_InsideWindow",
			condition: nearEndMinutes{},
			value:     float64(90),
			want:      true,
		},
		{
			name:      "NearEnd_OutsideWindow",
			condition: nearEndMinutes{},
			value:     float64(30),
			want:      false,
		},
		{
			name:      "PauseUntil_Passed",
			condition: pauseUntil{},
			value:     testTime.Add(-time.Hour).Format(time.RFC3339),
			want:      true,
		},
		{
			name:      "PauseUntil_StillPaused",
			condition: pauseUntil{},
			value:     testTime.Add(time.Hour).Format(time.RFC3339),
			want:      false,
		},
		{
			name:      "PauseUntil_NaiveTimestampAccepted",
			condition: pauseUntil{},
			value:     "2025-06-15T14:00:00",
			want:      false,
		},
		{
			name:      "PauseUntil_GarbageFailsOpen",
			condition: pauseUntil{},
			value:     "whenever",
			want:      true,
		},
		{
			name:      "PriceRatio_UnderBudget",
			condition: priceRatioToValue{},
			value:     float64(2),
			want:      true,
		},
		{
			name:      "PriceRatio_OverBudget",
			condition: priceRatioToValue{},
			value:     float64(1.2),
			want:      false,
		},
		{
			name:      "TargetUsers_LeaderTargeted",
			condition: targetUserIDs{},
			value:     []any{float64(20)},
			want:      true,
		},
		{
			name:      "TargetUsers_LeaderNotTargeted",
			condition: targetUserIDs{},
			value:     []any{float64(99)},
			want:      false,
		},
		{
			name:      "TargetUsers_NoBidsClosed",
			condition: targetUserIDs{},
			value:     []any{float64(20)},
			setup: func(snap *Snapshot) {
				snap.AllBids = nil
				snap.CurrentHighestBid = nil
			},
			want: false,
		},
		{
			name:      "AvoidUsers_LeaderAvoided",
			condition: avoidUserIDs{},
			value:     []any{float64(20)},
			want:      false,
		},
		{
			name:      "AvoidUsers_LeaderNotAvoided",
			condition: avoidUserIDs{},
			value:     []any{float64(99)},
			want:      true,
		},
		{
			name:      "AvoidUsers_NoBidsOpen",
			condition: avoidUserIDs{},
			value:     []any{float64(20)},
			setup: func(snap *Snapshot) {
				snap.AllBids = nil
				snap.CurrentHighestBid = nil
			},
			want: true,
		},
		{
			name:      "NoActivity_QuietLongEnough",
			condition: ifNoActivityFor{},
			value:     "0_0_5",
			want:      true,
		},
		{
			name:      "NoActivity_TooRecent",
			condition: ifNoActivityFor{},
			value:     "0_1_0",
			want:      false,
		},
		{
			name:      "NoActivity_MalformedFailsClosed",
			condition: ifNoActivityFor{},
			value:     "soon",
			want:      false,
		},
		{
			name:      "NoActivity_NoBidsAllows",
			condition: ifNoActivityFor{},
			value:     "1_0_0",
			setup: func(snap *Snapshot) {
				snap.AllBids = nil
				snap.CurrentHighestBid = nil
			},
			want: true,
		},
		{
			name:      "ReactDelay_Elapsed",
			condition: reactDelayMinutes{},
			value:     float64(5),
			want:      true,
		},
		{
			name:      "ReactDelay_NotElapsed",
			condition: reactDelayMinutes{},
			value:     float64(10),
			want:      false,
		},
		{
			name:      "ReactDelay_StringValue",
			condition: reactDelayMinutes{},
			value:     "10",
			want:      false,
		},
		{
			name:      "ReactDelay_NoCompetingBidsAllows",
			condition: reactDelayMinutes{},
			value:     float64(10),
			setup: func(snap *Snapshot) {
				snap.AllBids = nil
				snap.CurrentHighestBid = nil
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bids := make([]models.Bid, len(competing))
			copy(bids, competing)
			snap := newSnapshot(nil, bids)
			if tt.setup != nil {
				tt.setup(snap)
			}
			if got := tt.condition.ShouldBid(snap, tt.value); got != tt.want {
				t.Errorf("ShouldBid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModifiers(t *testing.T) {
	bids := []models.Bid{
		{ID: 2, BidderID: 20, Value: dec(150), CreatedAt: testTime.Add(-time.Minute)},
		{ID: 1, BidderID: 30, Value: dec(140), CreatedAt: testTime.Add(-2 * time.Minute)},
	}

	tests := []struct {
		name     string
		modifier AmountModifier
		value    any
		amount   decimal.Decimal
		setup    func(*Snapshot)
		want     *decimal.Decimal // nil means "no change"
	}{
		{
			name:     "MinIncrement_RaisesLowProposal",
			modifier: minIncrement{},
			value:    float64(20),
			amount:   dec(155),
			want:     decPtr(170),
		},
		{
			name:     "MinIncrement_LeavesSufficientProposal",
			modifier: minIncrement{},
			value:    float64(5),
			amount:   dec(160),
			want:     nil,
		},
		{
			name:     "MaxIncrement_CapsHighProposal",
			modifier: maxIncrement{},
			value:    float64(10),
			amount:   dec(200),
			want:     decPtr(160),
		},
		{
			name:     "MaxIncrement_LeavesModestProposal",
			modifier: maxIncrement{},
			value:    float64(30),
			amount:   dec(160),
			want:     nil,
		},
		{
			name:     "RelativeToPrice_ReplacesProposal",
			modifier: incrementRelativeToPrice{},
			value:    float64(0.1),
			amount:   dec(155),
			want:     decPtr(165), // 150 * 1.1
		},
		{
			name:     "StepAfter_PicksHighestTierUnderPrice",
			modifier: incrementStepAfter{},
			value:    map[string]any{"100": float64(10), "140": float64(25), "500": float64(50)},
			amount:   dec(155),
			want:     decPtr(175), // 150 + 25
		},
		{
			name:     "StepAfter_NoTierReached",
			modifier: incrementStepAfter{},
			value:    map[string]any{"500": float64(50)},
			amount:   dec(155),
			want:     nil,
		},
		{
			name:     "PercentageAfter_PicksTierFraction",
			modifier: incrementPercentageAfter{},
			value:    map[string]any{"100": float64(0.1)},
			amount:   dec(155),
			want:     decPtr(165), // 150 + 150*0.1
		},
		{
			name:     "CounterBidFactor_AnswersRaise",
			modifier: counterBidFactor{},
			value:    float64(2),
			amount:   dec(155),
			want:     decPtr(170), // raise was 10, counter 20, on top of 150
		},
		{
			name:     "CounterBidFactor_NeedsTwoBids",
			modifier: counterBidFactor{},
			value:    float64(2),
			amount:   dec(155),
			setup: func(snap *Snapshot) {
				snap.AllBids = snap.AllBids[:1]
			},
			want: nil,
		},
		{
			name:     "LastMinuteRush_OutsideFinalMinute",
			modifier: lastMinuteRush{},
			value:    true,
			amount:   dec(160),
			want:     nil,
		},
		{
			name:     "LastMinuteRush_AmplifiesIncrement",
			modifier: lastMinuteRush{},
			value:    true,
			amount:   dec(160),
			setup: func(snap *Snapshot) {
				snap.Auction.ExpiresAt = snap.Now.Add(30 * time.Second)
			},
			want: decPtr(165), // increment 10 becomes 15
		},
		{
			name:     "LastMinuteRush_DisabledNoChange",
			modifier: lastMinuteRush{},
			value:    false,
			amount:   dec(160),
			setup: func(snap *Snapshot) {
				snap.Auction.ExpiresAt = snap.Now.Add(30 * time.Second)
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := make([]models.Bid, len(bids))
			copy(history, bids)
			snap := newSnapshot(nil, history)
			if tt.setup != nil {
				tt.setup(snap)
			}
			got := tt.modifier.ModifyAmount(snap, tt.value, tt.amount)
			if tt.want == nil {
				if got != nil {
					t.Errorf("expected no change, got %s", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got no change", tt.want)
			}
			if !got.Equal(*tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestAvoidRoundNumbers(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mod := avoidRoundNumbers{rng: rng}
	snap := newSnapshot(nil, nil)

	out := mod.ModifyAmount(snap, true, dec(200))
	if out == nil {
		t.Fatal("multiple of 100 should be nudged")
	}
	offset := out.Sub(dec(200))
	found := false
	for _, o := range oddOffsets {
		if offset.Equal(decimal.NewFromInt(o)) {
			found = true
		}
	}
	if !found {
		t.Errorf("offset %s not one of the odd offsets", offset)
	}

	if got := mod.ModifyAmount(snap, true, dec(157)); got != nil {
		t.Errorf("non-round amount should be untouched, got %s", got)
	}
	if got := mod.ModifyAmount(snap, false, dec(200)); got != nil {
		t.Errorf("disabled clause should be a no-op, got %s", got)
	}
}

func TestRandomizeIncrement(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mod := randomizeIncrement{rng: rng}
	snap := newSnapshot(nil, []models.Bid{
		{ID: 1, BidderID: 20, Value: dec(100), CreatedAt: testTime},
	})

	// Increment is 50; the perturbed amount must stay within +-10% of it.
	for i := 0; i < 20; i++ {
		out := mod.ModifyAmount(snap, true, dec(150))
		if out == nil {
			t.Fatal("enabled clause returned no change")
		}
		if out.LessThan(dec(145)) || out.GreaterThan(dec(155)) {
			t.Errorf("perturbed amount %s outside [145, 155]", out)
		}
	}

	if got := mod.ModifyAmount(snap, false, dec(150)); got != nil {
		t.Errorf("disabled clause should be a no-op, got %s", got)
	}
}

func TestNotifyOnAction(t *testing.T) {
	snap := newSnapshot(nil, nil)
	emitter := notifyOnAction{}

	effects := emitter.PendingEffects(snap, true, dec(150))
	if len(effects) != 1 {
		t.Fatalf("expected 1 effect, got %d", len(effects))
	}
	if effects[0].Title != "AutoBid Action" {
		t.Errorf("unexpected title %q", effects[0].Title)
	}
	want := "Your AutoBid is about to place a bid of 150.00 on 'Painting'."
	if effects[0].Message != want {
		t.Errorf("message = %q, want %q", effects[0].Message, want)
	}

	// String spelling of true is accepted.
	if got := emitter.PendingEffects(snap, "true", dec(150)); len(got) != 1 {
		t.Errorf("expected string \"true\" to enable the clause")
	}
	if got := emitter.PendingEffects(snap, false, dec(150)); got != nil {
		t.Errorf("disabled clause emitted %d effects", len(got))
	}
}

func TestSafeShouldBid_PanicFailsOpen(t *testing.T) {
	snap := newSnapshot(nil, nil)
	snap.Auction = nil // forces a nil dereference inside the gate

	if !safeShouldBid(onlyIfPriceAbove{}, snap, float64(100)) {
		t.Error("panicking gate should fail open")
	}
}

func TestSafeModify_PanicIsNoop(t *testing.T) {
	snap := newSnapshot(nil, nil)
	snap.Auction = nil

	out := safeModify(minIncrement{}, minIncrement{}, snap, float64(10), dec(100))
	if out != nil {
		t.Errorf("panicking modifier should leave amount unchanged, got %s", out)
	}
}
