package autobid

import "github.com/shopspring/decimal"

// Decision is the outcome of evaluating one policy against one snapshot.
// Exactly one of the three kinds is produced per evaluation.
type Decision struct {
	Kind    DecisionKind
	Amount  decimal.Decimal // only set for DecisionPlaceBid
	Reason  string
	Effects []Effect // side effects to dispatch if the bid commits
}

type DecisionKind int

const (
	// DecisionPlaceBid instructs the executor to place a bid of Amount.
	DecisionPlaceBid DecisionKind = iota
	// DecisionSkipBid leaves the auction untouched this round.
	DecisionSkipBid
	// DecisionStopAutoBid deactivates the policy.
	DecisionStopAutoBid
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionPlaceBid:
		return "place"
	case DecisionSkipBid:
		return "skip"
	case DecisionStopAutoBid:
		return "stop"
	default:
		return "unknown"
	}
}

// Effect is a pending side effect emitted during amount modification, carried
// out by the executor only after the bid actually commits. Today the only
// effect is a user notification.
type Effect struct {
	Title   string
	Message string
}

func placeBid(amount decimal.Decimal, reason string, effects []Effect) Decision {
	return Decision{Kind: DecisionPlaceBid, Amount: amount, Reason: reason, Effects: effects}
}

func skipBid(reason string) Decision {
	return Decision{Kind: DecisionSkipBid, Reason: reason}
}

func stopAutoBid(reason string) Decision {
	return Decision{Kind: DecisionStopAutoBid, Reason: reason}
}
