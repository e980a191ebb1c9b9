package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/authz"
	"github.com/receiptly/team-api/internal/models"
	"github.com/receiptly/team-api/internal/repository"
)

type SubscriptionHandler struct {
	subscriptions repository.SubscriptionRepository
	logger        zerolog.Logger
}

func NewSubscriptionHandler(subscriptions repository.SubscriptionRepository, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// GetEntitlements returns the plan entitlements for the caller's own account.
func (h *SubscriptionHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	ents, err := h.subscriptions.Entitlements(r.Context(), identity.UserID)
	if err != nil {
		http.Error(w, "Failed to resolve entitlements: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ents)
}

type updateSubscriptionRequest struct {
	Tier     models.SubscriptionTier `json:"tier"`
	IsActive bool                    `json:"is_active"`
}

// UpdateSubscription is the hook the billing pipeline calls after a plan
// change. The next team load picks the new entitlements up.
func (h *SubscriptionHandler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req updateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch models.SubscriptionTier(strings.ToLower(string(req.Tier))) {
	case models.TierFree, models.TierPro, models.TierBusiness:
	default:
		http.Error(w, "Unknown subscription tier", http.StatusBadRequest)
		return
	}

	sub, err := h.subscriptions.UpsertSubscription(r.Context(), models.Subscription{
		AccountHolderID: identity.UserID,
		Tier:            req.Tier,
		IsActive:        req.IsActive,
	})
	if err != nil {
		http.Error(w, "Failed to update subscription: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sub)
}
