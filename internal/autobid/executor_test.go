package autobid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bidverse/bidverse/internal/models"
)

// fakeStore is an in-memory Store. Transactions are simulated: InTx snapshots
// the maps and restores them if fn returns an error.
type fakeStore struct {
	autobids      map[int]*models.AutoBid
	auctions      map[int]*models.Auction
	users         map[int]*models.User
	bids          map[int][]models.Bid // by auction, value descending
	notifications []models.Notification
	nextBidID     int

	placeBidErr error
	saveRunErr  error
	notifyErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		autobids:  make(map[int]*models.AutoBid),
		auctions:  make(map[int]*models.Auction),
		users:     make(map[int]*models.User),
		bids:      make(map[int][]models.Bid),
		nextBidID: 1,
	}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(f)
}

func (f *fakeStore) GetAutoBid(ctx context.Context, id int) (*models.AutoBid, error) {
	policy, ok := f.autobids[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	copied := *policy
	return &copied, nil
}

func (f *fakeStore) GetAuction(ctx context.Context, id int) (*models.Auction, error) {
	auction, ok := f.auctions[id]
	if !ok {
		return nil, errors.New("auction not found")
	}
	copied := *auction
	return &copied, nil
}

func (f *fakeStore) GetUser(ctx context.Context, id int) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) BidsForAuction(ctx context.Context, auctionID int) ([]models.Bid, error) {
	out := make([]models.Bid, len(f.bids[auctionID]))
	copy(out, f.bids[auctionID])
	return out, nil
}

func (f *fakeStore) PlaceBid(ctx context.Context, auctionID, bidderID int, value decimal.Decimal) (*models.Bid, error) {
	if f.placeBidErr != nil {
		return nil, f.placeBidErr
	}
	bid := models.Bid{
		ID:        f.nextBidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Value:     value,
		CreatedAt: time.Now(),
		IsWinning: true,
	}
	f.nextBidID++
	f.bids[auctionID] = append([]models.Bid{bid}, f.bids[auctionID]...)
	return &bid, nil
}

func (f *fakeStore) SaveAutoBidRun(ctx context.Context, policy *models.AutoBid) error {
	if f.saveRunErr != nil {
		return f.saveRunErr
	}
	copied := *policy
	f.autobids[policy.ID] = &copied
	return nil
}

func (f *fakeStore) DueAutoBids(ctx context.Context, now time.Time) ([]models.AutoBid, error) {
	var due []models.AutoBid
	for _, policy := range f.autobids {
		if !policy.IsActive {
			continue
		}
		if policy.NextRun == nil || policy.NextRun.Before(now) {
			due = append(due, *policy)
		}
	}
	return due, nil
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	n.ID = len(f.notifications) + 1
	f.notifications = append(f.notifications, *n)
	return nil
}

func seedStore(store *fakeStore) *models.AutoBid {
	store.users[10] = &models.User{ID: 10, Username: "bidder"}
	store.users[20] = &models.User{ID: 20, Username: "rival"}
	store.auctions[100] = &models.Auction{
		ID:           100,
		OwnerID:      1,
		ItemName:     "Painting",
		MinimumPrice: dec(100),
		Status:       models.StatusActive,
		CreatedAt:    testTime.Add(-24 * time.Hour),
		ExpiresAt:    testTime.Add(time.Hour),
	}
	store.bids[100] = []models.Bid{
		{ID: 1, AuctionID: 100, BidderID: 20, Value: dec(150), CreatedAt: testTime.Add(-time.Minute), IsWinning: true},
	}
	interval := 5
	policy := &models.AutoBid{
		ID: 1, UserID: 10, AuctionID: 100, IsActive: true,
		IncrementAmount: decPtr(10),
		IntervalMinutes: &interval,
		Conditions:      map[string]any{"if_outbid": true},
	}
	store.autobids[1] = policy
	return policy
}

func newTestExecutor(store *fakeStore) *Executor {
	return NewExecutor(store, newProcessor(), fixedClock{t: testTime})
}

func TestExecutor_PlacesBid(t *testing.T) {
	store := newFakeStore()
	seedStore(store)
	executor := newTestExecutor(store)

	outcome := executor.Evaluate(context.Background(), 1)
	if outcome.Kind != OutcomeBidPlaced {
		t.Fatalf("expected bid placed, got %v (%s)", outcome.Kind, outcome.Reason)
	}
	if !outcome.Amount.Equal(dec(160)) {
		t.Errorf("expected amount 160, got %s", outcome.Amount)
	}
	if len(store.bids[100]) != 2 {
		t.Fatalf("expected 2 bids in store, got %d", len(store.bids[100]))
	}
	if !store.bids[100][0].Value.Equal(dec(160)) {
		t.Errorf("newest bid should be 160, got %s", store.bids[100][0].Value)
	}

	saved := store.autobids[1]
	if saved.LastRun == nil || !saved.LastRun.Equal(testTime) {
		t.Errorf("LastRun not persisted: %v", saved.LastRun)
	}
	if saved.NextRun == nil || !saved.NextRun.Equal(testTime.Add(5*time.Minute)) {
		t.Errorf("NextRun not advanced by interval: %v", saved.NextRun)
	}
}

func TestExecutor_PolicyNotFound(t *testing.T) {
	store := newFakeStore()
	executor := newTestExecutor(store)

	outcome := executor.Evaluate(context.Background(), 999)
	if outcome.Kind != OutcomeNotFound {
		t.Errorf("expected not found, got %v", outcome.Kind)
	}
}

func TestExecutor_StopDeactivatesPolicy(t *testing.T) {
	store := newFakeStore()
	seedStore(store)
	store.auctions[100].ExpiresAt = testTime.Add(-time.Minute)
	executor := newTestExecutor(store)

	outcome := executor.Evaluate(context.Background(), 1)
	if outcome.Kind != OutcomeStopped {
		t.Fatalf("expected stopped, got %v (%s)", outcome.Kind, outcome.Reason)
	}
	if store.autobids[1].IsActive {
		t.Error("stopped policy should be deactivated in storage")
	}
}

func TestExecutor_LedgerFailureStillPersistsBookkeeping(t *testing.T) {
	store := newFakeStore()
	seedStore(store)
	store.placeBidErr = ErrConcurrencyConflict
	executor := newTestExecutor(store)

	outcome := executor.Evaluate(context.Background(), 1)
	if outcome.Kind != OutcomeError {
		t.Fatalf("expected error outcome, got %v (%s)", outcome.Kind, outcome.Reason)
	}

	saved := store.autobids[1]
	if saved.LastRun == nil {
		t.Error("LastRun must be persisted even when the ledger write fails")
	}
	if !saved.IsActive {
		t.Error("failed ledger write must not deactivate the policy")
	}
}

func TestExecutor_DispatchesNotifications(t *testing.T) {
	store := newFakeStore()
	policy := seedStore(store)
	policy.Conditions["notify_on_action"] = true
	executor := newTestExecutor(store)

	outcome := executor.Evaluate(context.Background(), 1)
	if outcome.Kind != OutcomeBidPlaced {
		t.Fatalf("expected bid placed, got %v (%s)", outcome.Kind, outcome.Reason)
	}
	if len(store.notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(store.notifications))
	}
	n := store.notifications[0]
	if n.ReceiverID != 10 {
		t.Errorf("notification should go to the policy's user, got %d", n.ReceiverID)
	}
	if n.AuctionID == nil || *n.AuctionID != 100 {
		t.Errorf("notification should reference the auction, got %v", n.AuctionID)
	}
}

func TestExecutor_NotificationFailureDoesNotFailBid(t *testing.T) {
	store := newFakeStore()
	policy := seedStore(store)
	policy.Conditions["notify_on_action"] = true
	store.notifyErr = errors.New("notification table on fire")
	executor := newTestExecutor(store)

	outcome := executor.Evaluate(context.Background(), 1)
	if outcome.Kind != OutcomeBidPlaced {
		t.Errorf("notification failure must not fail the bid, got %v (%s)", outcome.Kind, outcome.Reason)
	}
}

func TestExecutor_RunDue(t *testing.T) {
	store := newFakeStore()
	seedStore(store)

	// A second policy that will skip: its user already leads.
	store.users[30] = &models.User{ID: 30, Username: "leader"}
	store.bids[200] = []models.Bid{
		{ID: 5, AuctionID: 200, BidderID: 30, Value: dec(90), CreatedAt: testTime.Add(-time.Minute), IsWinning: true},
	}
	store.auctions[200] = &models.Auction{
		ID: 200, OwnerID: 1, ItemName: "Clock", MinimumPrice: dec(50),
		Status:    models.StatusActive,
		CreatedAt: testTime.Add(-24 * time.Hour),
		ExpiresAt: testTime.Add(time.Hour),
	}
	store.autobids[2] = &models.AutoBid{
		ID: 2, UserID: 30, AuctionID: 200, IsActive: true,
		IncrementAmount: decPtr(5),
		Conditions:      map[string]any{"if_outbid": true},
	}

	// Not due yet: NextRun in the future.
	future := testTime.Add(time.Hour)
	store.autobids[3] = &models.AutoBid{
		ID: 3, UserID: 10, AuctionID: 100, IsActive: true,
		IncrementAmount: decPtr(5),
		NextRun:         &future,
		Conditions:      map[string]any{"if_outbid": true},
	}

	executor := newTestExecutor(store)
	summary := executor.RunDue(context.Background())

	if len(summary.Results) != 2 {
		t.Fatalf("expected 2 due policies, got %d", len(summary.Results))
	}
	if summary.Placed != 1 || summary.Skipped != 1 {
		t.Errorf("expected 1 placed and 1 skipped, got placed=%d skipped=%d", summary.Placed, summary.Skipped)
	}
	if len(store.bids[200]) != 1 {
		t.Errorf("skipped policy must not touch the ledger, found %d bids", len(store.bids[200]))
	}
}

func TestExecutor_RunDueIsolatesFailures(t *testing.T) {
	store := newFakeStore()
	seedStore(store)

	// Policy 2 references a missing auction, which errors the transaction.
	store.autobids[2] = &models.AutoBid{
		ID: 2, UserID: 10, AuctionID: 999, IsActive: true,
		IncrementAmount: decPtr(5),
		Conditions:      map[string]any{"if_outbid": true},
	}

	executor := newTestExecutor(store)
	summary := executor.RunDue(context.Background())

	if len(summary.Results) != 2 {
		t.Fatalf("expected both policies attempted, got %d", len(summary.Results))
	}
	if summary.Placed != 1 || summary.Errored != 1 {
		t.Errorf("expected 1 placed and 1 errored, got placed=%d errored=%d", summary.Placed, summary.Errored)
	}
}
