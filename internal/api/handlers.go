package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bidverse/bidverse/internal/auth"
	"github.com/bidverse/bidverse/internal/autobid"
	"github.com/bidverse/bidverse/internal/db"
	"github.com/bidverse/bidverse/internal/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	AuthService *auth.AuthService
	Executor    *autobid.Executor
	Clock       autobid.Clock
}

// NewHandler creates a new handler
func NewHandler(db *db.DB, authService *auth.AuthService, executor *autobid.Executor, clock autobid.Clock) *Handler {
	return &Handler{DB: db, AuthService: authService, Executor: executor, Clock: clock}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		http.Error(w, `{"error": "Failed to register user"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		// Add user_id to context
		ctx := context.WithValue(r.Context(), "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CreateAuction handles auction creation
func (h *Handler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		ItemName     string          `json:"item_name"`
		Description  string          `json:"description"`
		MinimumPrice decimal.Decimal `json:"minimum_price"`
		MinStep      decimal.Decimal `json:"min_step"`
		ExpiresAt    time.Time       `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.ItemName == "" || req.MinimumPrice.IsNegative() {
		http.Error(w, `{"error": "Item name and non-negative minimum price required"}`, http.StatusBadRequest)
		return
	}

	now := h.Clock.Now()
	if !req.ExpiresAt.After(now) {
		http.Error(w, `{"error": "Expiry must be in the future"}`, http.StatusBadRequest)
		return
	}

	auction, err := h.DB.CreateAuction(r.Context(), &models.Auction{
		OwnerID:      userID,
		ItemName:     req.ItemName,
		Description:  req.Description,
		MinimumPrice: req.MinimumPrice,
		MinStep:      req.MinStep,
		Status:       models.StatusAt(now, now, req.ExpiresAt),
		CreatedAt:    now,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		http.Error(w, `{"error": "Failed to create auction"}`, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     auction.ID,
		"status": auction.Status,
	})
}

// ListAuctions retrieves all auctions
func (h *Handler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.DB.ListAuctions(r.Context())
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve auctions"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(auctions)
}

// GetAuction retrieves one auction
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid auction ID"}`, http.StatusBadRequest)
		return
	}

	auction, err := h.DB.GetAuction(r.Context(), auctionID)
	if err != nil {
		http.Error(w, `{"error": "Auction not found"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(auction)
}

// UpdateAuctionStatus lets the auction owner apply an explicit status
// transition, e.g. closing early.
func (h *Handler) UpdateAuctionStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	auctionID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid auction ID"}`, http.StatusBadRequest)
		return
	}

	auction, err := h.DB.GetAuction(r.Context(), auctionID)
	if err != nil {
		http.Error(w, `{"error": "Auction not found"}`, http.StatusNotFound)
		return
	}
	if auction.OwnerID != userID {
		http.Error(w, `{"error": "Only the owner can change auction status"}`, http.StatusForbidden)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.DB.UpdateAuctionStatus(r.Context(), auctionID, req.Status); err != nil {
		http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Auction status updated"})
}

// ListBids retrieves an auction's bids, highest first
func (h *Handler) ListBids(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid auction ID"}`, http.StatusBadRequest)
		return
	}

	bids, err := h.DB.BidsForAuction(r.Context(), auctionID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve bids"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(bids)
}

// PlaceBid handles a human bid through the ledger writer
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	auctionID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid auction ID"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		Value decimal.Decimal `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if !req.Value.IsPositive() {
		http.Error(w, `{"error": "Bid value must be positive"}`, http.StatusBadRequest)
		return
	}

	bid, err := h.DB.PlaceBid(r.Context(), auctionID, userID, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, autobid.ErrAuctionNotActive),
			errors.Is(err, autobid.ErrOwnBid),
			errors.Is(err, autobid.ErrBidBelowFloor):
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		case errors.Is(err, autobid.ErrConcurrencyConflict):
			http.Error(w, `{"error": "Auction is busy, try again"}`, http.StatusConflict)
		default:
			http.Error(w, `{"error": "Failed to place bid"}`, http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bid)
}

// CreateAutoBid creates an autobid policy for the authenticated user
func (h *Handler) CreateAutoBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		AuctionID         int              `json:"auction_id"`
		StartingBidAmount *decimal.Decimal `json:"starting_bid_amount"`
		IncrementAmount   *decimal.Decimal `json:"increment_amount"`
		MaxBidAmount      *decimal.Decimal `json:"max_bid_amount"`
		IntervalMinutes   *int             `json:"interval_minutes"`
		Conditions        map[string]any   `json:"conditions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if _, err := h.DB.GetAuction(r.Context(), req.AuctionID); err != nil {
		http.Error(w, `{"error": "Auction not found"}`, http.StatusNotFound)
		return
	}

	policy, err := h.DB.CreateAutoBid(r.Context(), &models.AutoBid{
		UserID:            userID,
		AuctionID:         req.AuctionID,
		StartingBidAmount: req.StartingBidAmount,
		IncrementAmount:   req.IncrementAmount,
		MaxBidAmount:      req.MaxBidAmount,
		IntervalMinutes:   req.IntervalMinutes,
		IsActive:          true,
		Conditions:        req.Conditions,
	})
	if err != nil {
		// Most likely the unique active-policy constraint.
		http.Error(w, `{"error": "Failed to create autobid"}`, http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{"id": policy.ID})
}

// ListAutoBids retrieves the authenticated user's policies
func (h *Handler) ListAutoBids(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	policies, err := h.DB.ListAutoBidsForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve autobids"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(policies)
}

// UpdateAutoBid activates or deactivates a policy
func (h *Handler) UpdateAutoBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	policyID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid autobid ID"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.DB.SetAutoBidActive(r.Context(), policyID, userID, req.IsActive); err != nil {
		http.Error(w, `{"error": "AutoBid not found"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "AutoBid updated"})
}

// EvaluateAutoBid runs a single policy evaluation on demand
func (h *Handler) EvaluateAutoBid(w http.ResponseWriter, r *http.Request) {
	policyID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid autobid ID"}`, http.StatusBadRequest)
		return
	}

	outcome := h.Executor.Evaluate(r.Context(), policyID)
	if outcome.Kind == autobid.OutcomeNotFound {
		w.WriteHeader(http.StatusNotFound)
	}
	json.NewEncoder(w).Encode(outcome)
}

// RunDueAutoBids triggers a batch run over all due policies
func (h *Handler) RunDueAutoBids(w http.ResponseWriter, r *http.Request) {
	summary := h.Executor.RunDue(r.Context())
	json.NewEncoder(w).Encode(summary)
}

// ListNotifications retrieves the authenticated user's notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	notifications, err := h.DB.NotificationsForUser(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve notifications"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(notifications)
}

// OpenNotification marks a notification as read
func (h *Handler) OpenNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	notificationID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid notification ID"}`, http.StatusBadRequest)
		return
	}

	if err := h.DB.MarkNotificationOpened(r.Context(), notificationID, userID); err != nil {
		http.Error(w, `{"error": "Notification not found"}`, http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Notification opened"})
}
