package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/authz"
)

type TeamHandler struct {
	manager *access.Manager
	logger  zerolog.Logger
}

func NewTeamHandler(manager *access.Manager, logger zerolog.Logger) *TeamHandler {
	return &TeamHandler{manager: manager, logger: logger}
}

type teamResponse struct {
	access.State
	CanInviteMembers      bool `json:"can_invite_members"`
	CanManageTeam         bool `json:"can_manage_team"`
	HasReachedMemberLimit bool `json:"has_reached_member_limit"`
}

func (h *TeamHandler) teamView(ctrl *access.Controller) teamResponse {
	return teamResponse{
		State:                 ctrl.Snapshot(),
		CanInviteMembers:      ctrl.CanInviteMembers(),
		CanManageTeam:         ctrl.CanManageTeam(),
		HasReachedMemberLimit: ctrl.HasReachedMemberLimit(),
	}
}

// GetTeam returns the caller's team view: collections, membership, derived
// permission flags. The first call after sign-in triggers the initial load.
func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	ctrl := controllerForRequest(r.Context(), h.manager, identity)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.teamView(ctrl))
}

// RefreshTeam re-runs the load protocol without flipping the loading flag.
func (h *TeamHandler) RefreshTeam(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	ctrl := controllerForRequest(r.Context(), h.manager, identity)
	ctrl.RefreshTeamData(r.Context())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.teamView(ctrl))
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	identity, ok := authz.IdentityFromRequest(r)
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	memberID := mux.Vars(r)["id"]

	ctrl := controllerForRequest(r.Context(), h.manager, identity)
	if err := ctrl.RemoveTeamMember(r.Context(), memberID); err != nil {
		writeTeamError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
