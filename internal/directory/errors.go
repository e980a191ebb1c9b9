package directory

import "errors"

var (
	// Validation failures, rejected before any mutation.
	ErrInvalidEmail        = errors.New("invite email is not a valid address")
	ErrInvalidRole         = errors.New("invalid team role")
	ErrDuplicateInvitation = errors.New("a pending invitation for this email already exists")

	// ErrInvitationInvalid covers tokens that resolve to an invitation which
	// is no longer pending or has expired.
	ErrInvitationInvalid  = errors.New("invitation is no longer valid")
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrAlreadyMember rejects accepting an invitation while an active
	// membership for the same user exists. Allowing a second membership
	// would break the one-active-membership-per-user invariant the
	// revocation watcher relies on.
	ErrAlreadyMember = errors.New("user already has an active team membership")

	ErrMemberNotFound = errors.New("team member not found")
)
