package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/authz"
	"github.com/receiptly/team-api/internal/directory"
	"github.com/receiptly/team-api/internal/models"
)

type InviteHandler struct {
	manager   *access.Manager
	directory *directory.Service
	logger    zerolog.Logger
}

func NewInviteHandler(manager *access.Manager, dir *directory.Service, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{manager: manager, directory: dir, logger: logger}
}

func (h *InviteHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	var req access.InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctrl := controllerForRequest(r.Context(), h.manager, identity)
	invitation, err := ctrl.InviteTeammate(r.Context(), req)
	if err != nil {
		writeTeamError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(invitation)
}

// PreviewInvitation is the unauthenticated lookup behind the invite link. It
// exposes just enough for the accept screen and never the token hash.
func (h *InviteHandler) PreviewInvitation(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]

	invitation, err := h.directory.GetInvitationByToken(r.Context(), token)
	if err != nil {
		writeTeamError(w, err)
		return
	}

	if !invitation.IsConsumable(time.Now()) {
		http.Error(w, "Invitation is no longer valid", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		InviteEmail       string            `json:"invite_email"`
		AccountHolderName string            `json:"account_holder_name"`
		Role              models.MemberRole `json:"role"`
		ExpiresAt         time.Time         `json:"expires_at"`
	}{
		InviteEmail:       invitation.InviteEmail,
		AccountHolderName: invitation.AccountHolderName,
		Role:              invitation.Role,
		ExpiresAt:         invitation.ExpiresAt,
	})
}

func (h *InviteHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	token := mux.Vars(r)["token"]
	if token == "" {
		http.Error(w, "Invitation token is required", http.StatusBadRequest)
		return
	}

	ctrl := controllerForRequest(r.Context(), h.manager, identity)
	member, err := ctrl.AcceptInvitation(r.Context(), access.AcceptInvitationRequest{Token: token})
	if err != nil {
		writeTeamError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

func (h *InviteHandler) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	invitationID := mux.Vars(r)["id"]

	ctrl := controllerForRequest(r.Context(), h.manager, identity)
	if err := ctrl.RevokeInvitation(r.Context(), invitationID); err != nil {
		writeTeamError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
