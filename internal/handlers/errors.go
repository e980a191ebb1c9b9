package handlers

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/receiptly/team-api/internal/access"
	"github.com/receiptly/team-api/internal/directory"
)

// writeTeamError translates directory and access errors to HTTP statuses.
// Anything unrecognized is treated as a store failure.
func writeTeamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidEmail),
		errors.Is(err, directory.ErrInvalidRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, directory.ErrInvitationNotFound),
		errors.Is(err, directory.ErrMemberNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, directory.ErrInvitationInvalid):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, directory.ErrDuplicateInvitation),
		errors.Is(err, directory.ErrAlreadyMember),
		errors.Is(err, access.ErrMemberLimitReached):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, access.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, "Team operation failed: "+err.Error(), http.StatusInternalServerError)
	}
}
