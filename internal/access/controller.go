package access

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/directory"
	"github.com/receiptly/team-api/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrPermissionDenied   = errors.New("insufficient permissions to manage the team")
	ErrMemberLimitReached = errors.New("team member limit reached")
)

const (
	defaultLoadTimeout  = 15 * time.Second
	defaultSignoutDelay = 3 * time.Second
)

// Directory is the subset of the team directory the controller consumes.
// *directory.Service satisfies it.
type Directory interface {
	CreateInvitation(ctx context.Context, accountHolderID string, req directory.CreateInvitationRequest) (models.TeamInvitation, string, error)
	GetInvitationByToken(ctx context.Context, token string) (models.TeamInvitation, error)
	AcceptInvitation(ctx context.Context, invitationID string, user models.User) (models.TeamMember, error)
	RevokeInvitation(ctx context.Context, invitationID string) error
	GetTeamMembers(ctx context.Context, accountHolderID string) ([]models.TeamMember, error)
	GetInvitationsForAccount(ctx context.Context, accountHolderID string) ([]models.TeamInvitation, error)
	GetTeamMembershipByUserID(ctx context.Context, userID string) (*models.TeamMember, error)
	UpdateMemberLastActive(ctx context.Context, memberID string)
	RemoveMember(ctx context.Context, memberID string) error
	GetTeamStats(ctx context.Context, accountHolderID string) (models.TeamStats, error)
}

// SubscriptionSource resolves the entitlements an account holder's plan
// grants. The controller treats a fetch failure as "subscription state not
// loaded", which disables every permission until a later load succeeds.
type SubscriptionSource interface {
	Entitlements(ctx context.Context, accountHolderID string) (models.Entitlements, error)
}

// Notifier receives the team lifecycle events the controller produces.
type Notifier interface {
	NotifyInvitationSent(ctx context.Context, invitation models.TeamInvitation, token string) error
	NotifyInvitationRevoked(ctx context.Context, accountHolderID, invitationID string) error
	NotifyMemberJoined(ctx context.Context, member models.TeamMember) error
	NotifyMemberRemoved(ctx context.Context, accountHolderID, memberID string) error
	NotifyAccessRevoked(ctx context.Context, userID, reason string) error
}

// State is the read model exposed to consumers.
type State struct {
	TeamMembers        []models.TeamMember     `json:"team_members"`
	TeamInvitations    []models.TeamInvitation `json:"team_invitations"`
	TeamStats          *models.TeamStats       `json:"team_stats,omitempty"`
	Loading            bool                    `json:"loading"`
	Error              string                  `json:"error,omitempty"`
	IsTeamMember       bool                    `json:"is_team_member"`
	CurrentMembership  *models.TeamMember      `json:"current_membership,omitempty"`
	AccountHolderID    string                  `json:"account_holder_id"`
	Entitlements       models.Entitlements     `json:"entitlements"`
	SubscriptionLoaded bool                    `json:"subscription_loaded"`
}

type Config struct {
	User          models.User
	Directory     Directory
	Subscriptions SubscriptionSource
	Watcher       MembershipWatcher
	Notifier      Notifier
	// Logout is the external sign-out primitive, invoked exactly once per
	// forced revocation, SignoutDelay after the access-loss notice.
	Logout func(userID string)
	// SessionRevoked fires the moment access loss is detected, before the
	// delayed Logout, so token validation can cut over immediately.
	SessionRevoked func(userID string, revokedAt time.Time)
	LoadTimeout    time.Duration
	SignoutDelay   time.Duration
	Logger         zerolog.Logger
}

// Controller owns the in-memory team view for one signed-in identity. It is
// constructed on sign-in and torn down on sign-out; all state lives behind
// one mutex and every store round trip is bounded by the load timeout.
type Controller struct {
	cfg    Config
	logger zerolog.Logger

	loads singleflight.Group

	mu          sync.Mutex
	state       State
	watchID     string
	watchCancel func()
	revoked     bool
	closed      bool
}

func NewController(cfg Config) *Controller {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}
	if cfg.SignoutDelay <= 0 {
		cfg.SignoutDelay = defaultSignoutDelay
	}
	return &Controller{
		cfg: cfg,
		logger: cfg.Logger.With().
			Str("component", "access_controller").
			Str("user_id", cfg.User.ID).
			Logger(),
		state: State{AccountHolderID: cfg.User.ID},
	}
}

// LoadTeamData resolves the caller's membership and populates the team view.
// Concurrent calls collapse into a single directory query sequence; every
// caller observes the final state of the one load that ran.
func (c *Controller) LoadTeamData(ctx context.Context) {
	c.load(ctx, true)
}

// RefreshTeamData runs the same protocol without flipping the loading flag,
// so a manual refresh does not flicker consumers that render on it.
func (c *Controller) RefreshTeamData(ctx context.Context) {
	c.load(ctx, false)
}

func (c *Controller) load(ctx context.Context, flipLoading bool) {
	c.loads.Do("load", func() (interface{}, error) {
		c.doLoad(ctx, flipLoading)
		return nil, nil
	})
}

func (c *Controller) doLoad(ctx context.Context, flipLoading bool) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoadTimeout)
	defer cancel()

	if flipLoading {
		c.mu.Lock()
		c.state.Loading = true
		c.state.Error = ""
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			c.state.Loading = false
			c.mu.Unlock()
		}()
	}

	membership, err := c.cfg.Directory.GetTeamMembershipByUserID(ctx, c.cfg.User.ID)
	if err != nil {
		c.recordError(err)
		return
	}

	if membership != nil {
		c.applyMemberState(ctx, *membership)
	} else {
		c.applyAccountHolderState(ctx)
	}
}

func (c *Controller) applyMemberState(ctx context.Context, membership models.TeamMember) {
	c.mu.Lock()
	m := membership
	c.state.IsTeamMember = true
	c.state.CurrentMembership = &m
	c.state.AccountHolderID = membership.AccountHolderID
	c.mu.Unlock()

	// Fire and forget; the directory logs failures itself.
	go c.cfg.Directory.UpdateMemberLastActive(context.Background(), membership.ID)

	c.loadEntitlements(ctx, membership.AccountHolderID)

	if membership.Role == models.RoleAdmin {
		// Admins get team management visibility under the account holder.
		c.fetchManagementData(ctx, membership.AccountHolderID)
	} else {
		// Teammates read their own data only.
		c.clearManagementData()
	}

	c.ensureWatch(membership.ID)
}

func (c *Controller) applyAccountHolderState(ctx context.Context) {
	c.mu.Lock()
	c.state.IsTeamMember = false
	c.state.CurrentMembership = nil
	c.state.AccountHolderID = c.cfg.User.ID
	c.mu.Unlock()

	// No membership document to watch anymore.
	c.stopWatch()

	ents, ok := c.loadEntitlements(ctx, c.cfg.User.ID)
	if !ok {
		return
	}

	if ents.TeamManagement {
		c.fetchManagementData(ctx, c.cfg.User.ID)
	} else {
		// A downgrade must not leave stale team data behind.
		c.clearManagementData()
	}
}

func (c *Controller) loadEntitlements(ctx context.Context, accountHolderID string) (models.Entitlements, bool) {
	ents, err := c.cfg.Subscriptions.Entitlements(ctx, accountHolderID)
	c.mu.Lock()
	if err != nil {
		c.state.SubscriptionLoaded = false
		c.mu.Unlock()
		c.recordError(err)
		return models.Entitlements{}, false
	}
	c.state.Entitlements = ents
	c.state.SubscriptionLoaded = true
	c.mu.Unlock()
	return ents, true
}

func (c *Controller) fetchManagementData(ctx context.Context, accountHolderID string) {
	var (
		members     []models.TeamMember
		invitations []models.TeamInvitation
		stats       models.TeamStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = c.cfg.Directory.GetTeamMembers(gctx, accountHolderID)
		return err
	})
	g.Go(func() error {
		var err error
		invitations, err = c.cfg.Directory.GetInvitationsForAccount(gctx, accountHolderID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = c.cfg.Directory.GetTeamStats(gctx, accountHolderID)
		return err
	})

	if err := g.Wait(); err != nil {
		// Transient read failure: keep the last-known collections so
		// consumers can still render something.
		c.recordError(err)
		return
	}

	if members == nil {
		members = []models.TeamMember{}
	}
	if invitations == nil {
		invitations = []models.TeamInvitation{}
	}

	c.mu.Lock()
	c.state.TeamMembers = members
	c.state.TeamInvitations = invitations
	c.state.TeamStats = &stats
	c.state.Error = ""
	c.mu.Unlock()
}

func (c *Controller) clearManagementData() {
	c.mu.Lock()
	c.state.TeamMembers = []models.TeamMember{}
	c.state.TeamInvitations = []models.TeamInvitation{}
	c.state.TeamStats = nil
	c.mu.Unlock()
}

func (c *Controller) recordError(err error) {
	c.logger.Warn().Err(err).Msg("team data load failed")
	c.mu.Lock()
	c.state.Error = err.Error()
	c.mu.Unlock()
}

// ensureWatch opens the revocation watch for memberID. The id is claimed
// under the mutex before the store round trip, so concurrent setup for the
// same id (a load racing an invitation accept) opens exactly one
// subscription; a displaced watch is released, never overwritten.
func (c *Controller) ensureWatch(memberID string) {
	c.mu.Lock()
	if c.closed || c.revoked || c.watchID == memberID {
		c.mu.Unlock()
		return
	}
	displaced := c.watchCancel
	c.watchCancel = nil
	c.watchID = memberID
	c.mu.Unlock()

	if displaced != nil {
		displaced()
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, release, err := c.cfg.Watcher.Watch(ctx, memberID)
	if err != nil {
		cancel()
		c.logger.Error().Err(err).Str("member_id", memberID).Msg("failed to open membership watch")
		c.mu.Lock()
		if c.watchID == memberID {
			c.watchID = ""
		}
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	if c.closed || c.revoked || c.watchID != memberID {
		// Torn down or re-targeted while the subscription was opening.
		c.mu.Unlock()
		cancel()
		release()
		return
	}
	c.watchCancel = func() {
		cancel()
		release()
	}
	c.mu.Unlock()

	go c.watchLoop(memberID, events)
}

func (c *Controller) stopWatch() {
	c.mu.Lock()
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	c.watchID = ""
	c.mu.Unlock()
}

func (c *Controller) watchLoop(memberID string, events <-chan MembershipEvent) {
	for ev := range events {
		switch {
		case ev.Err != nil && errors.Is(ev.Err, ErrWatchUnauthorized):
			c.forceRevocation("access to the team has been revoked")
			return
		case ev.Err != nil:
			c.logger.Warn().Err(ev.Err).Str("member_id", memberID).Msg("membership watch error")
		case ev.Member == nil:
			c.forceRevocation("your team membership has been removed")
			return
		case !ev.Member.IsActive():
			c.forceRevocation("your team membership is no longer active")
			return
		default:
			// Role or permission changes take effect without a full reload.
			c.mu.Lock()
			member := *ev.Member
			c.state.CurrentMembership = &member
			c.mu.Unlock()
		}
	}
}

// forceRevocation clears all team state, surfaces the access-loss notice and
// signs the user out after a short delay so the notice lands first. Repeated
// notifications trigger at most one sign-out.
func (c *Controller) forceRevocation(reason string) {
	c.mu.Lock()
	if c.revoked {
		c.mu.Unlock()
		return
	}
	c.revoked = true
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	c.watchID = ""
	c.state = State{AccountHolderID: c.cfg.User.ID}
	c.mu.Unlock()

	c.logger.Warn().Str("reason", reason).Msg("team access revoked, forcing sign-out")

	if c.cfg.SessionRevoked != nil {
		c.cfg.SessionRevoked(c.cfg.User.ID, time.Now())
	}

	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.NotifyAccessRevoked(context.Background(), c.cfg.User.ID, reason); err != nil {
			c.logger.Error().Err(err).Msg("failed to deliver access revoked notice")
		}
	}

	time.AfterFunc(c.cfg.SignoutDelay, func() {
		if c.cfg.Logout != nil {
			c.cfg.Logout(c.cfg.User.ID)
		}
	})
}

// Close tears the controller down on sign-out, releasing the watch.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.watchCancel != nil {
		c.watchCancel()
		c.watchCancel = nil
	}
	c.watchID = ""
	c.mu.Unlock()
}

func (c *Controller) isRevoked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revoked
}

// Snapshot returns a copy of the current read model.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type InviteRequest struct {
	Email string            `json:"email"`
	Role  models.MemberRole `json:"role"`
}

// InviteTeammate creates an invitation under the resolved account holder.
// Eligibility is recomputed from live subscription state at call time rather
// than trusted from previously derived booleans, so a subscription that
// finished loading after the consumer rendered still counts.
func (c *Controller) InviteTeammate(ctx context.Context, req InviteRequest) (models.TeamInvitation, error) {
	c.mu.Lock()
	isMember := c.state.IsTeamMember
	var role models.MemberRole
	if c.state.CurrentMembership != nil {
		role = c.state.CurrentMembership.Role
	}
	accountHolderID := c.state.AccountHolderID
	c.mu.Unlock()

	ents, err := c.cfg.Subscriptions.Entitlements(ctx, accountHolderID)
	if err != nil {
		return models.TeamInvitation{}, err
	}
	c.mu.Lock()
	c.state.Entitlements = ents
	c.state.SubscriptionLoaded = true
	c.mu.Unlock()

	if !CanInviteMembers(PermissionInput{
		SubscriptionLoaded: true,
		TeamManagement:     ents.TeamManagement,
		IsTeamMember:       isMember,
		Role:               role,
	}) {
		return models.TeamInvitation{}, ErrPermissionDenied
	}

	if c.HasReachedMemberLimit() {
		return models.TeamInvitation{}, ErrMemberLimitReached
	}

	invitation, token, err := c.cfg.Directory.CreateInvitation(ctx, accountHolderID, directory.CreateInvitationRequest{
		InviteEmail:       req.Email,
		Role:              req.Role,
		AccountHolderName: c.accountHolderName(),
	})
	if err != nil {
		return models.TeamInvitation{}, err
	}

	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.NotifyInvitationSent(ctx, invitation, token); err != nil {
			c.logger.Error().Err(err).Str("invitation_id", invitation.ID).Msg("failed to send invitation notice")
		}
	}

	c.refreshInvitations(ctx, accountHolderID)

	return invitation, nil
}

type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation redeems an invitation token for the signed-in user and
// performs the member transition locally instead of waiting for a reload.
func (c *Controller) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (models.TeamMember, error) {
	invitation, err := c.cfg.Directory.GetInvitationByToken(ctx, req.Token)
	if err != nil {
		return models.TeamMember{}, err
	}

	member, err := c.cfg.Directory.AcceptInvitation(ctx, invitation.ID, c.cfg.User)
	if err != nil {
		return models.TeamMember{}, err
	}

	c.mu.Lock()
	m := member
	c.state.IsTeamMember = true
	c.state.CurrentMembership = &m
	c.state.AccountHolderID = member.AccountHolderID
	c.state.TeamMembers = []models.TeamMember{}
	c.state.TeamInvitations = []models.TeamInvitation{}
	c.state.TeamStats = nil
	c.state.Error = ""
	c.mu.Unlock()

	c.ensureWatch(member.ID)

	if member.Role == models.RoleAdmin {
		c.fetchManagementData(ctx, member.AccountHolderID)
	}

	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.NotifyMemberJoined(ctx, member); err != nil {
			c.logger.Error().Err(err).Str("member_id", member.ID).Msg("failed to send member joined notice")
		}
	}

	return member, nil
}

// RevokeInvitation withdraws a pending invitation and refreshes the
// invitation list.
func (c *Controller) RevokeInvitation(ctx context.Context, invitationID string) error {
	if !c.CanManageTeam() {
		return ErrPermissionDenied
	}

	if err := c.cfg.Directory.RevokeInvitation(ctx, invitationID); err != nil {
		return err
	}

	c.mu.Lock()
	accountHolderID := c.state.AccountHolderID
	c.mu.Unlock()
	c.refreshInvitations(ctx, accountHolderID)

	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.NotifyInvitationRevoked(ctx, accountHolderID, invitationID); err != nil {
			c.logger.Error().Err(err).Str("invitation_id", invitationID).Msg("failed to send invitation revoked notice")
		}
	}

	return nil
}

// RemoveTeamMember deletes a membership; the member's own watch observes the
// deletion and drives their forced sign-out.
func (c *Controller) RemoveTeamMember(ctx context.Context, memberID string) error {
	if !c.CanManageTeam() {
		return ErrPermissionDenied
	}

	if err := c.cfg.Directory.RemoveMember(ctx, memberID); err != nil {
		return err
	}

	c.mu.Lock()
	accountHolderID := c.state.AccountHolderID
	c.mu.Unlock()

	c.fetchManagementData(ctx, accountHolderID)

	if c.cfg.Notifier != nil {
		if err := c.cfg.Notifier.NotifyMemberRemoved(ctx, accountHolderID, memberID); err != nil {
			c.logger.Error().Err(err).Str("member_id", memberID).Msg("failed to send member removed notice")
		}
	}

	return nil
}

// CanInviteMembers evaluates the invite permission from the cached view.
func (c *Controller) CanInviteMembers() bool {
	return CanInviteMembers(c.permissionInput())
}

// CanManageTeam evaluates the management permission from the cached view.
func (c *Controller) CanManageTeam() bool {
	return CanManageTeam(c.permissionInput())
}

// HasReachedMemberLimit applies the quota rule to the cached collections.
func (c *Controller) HasReachedMemberLimit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.SubscriptionLoaded {
		return false
	}

	now := time.Now()
	pending := 0
	for _, invitation := range c.state.TeamInvitations {
		if invitation.IsConsumable(now) {
			pending++
		}
	}

	return ReachedMemberLimit(c.state.Entitlements.MaxTeamMembers, len(c.state.TeamMembers), pending)
}

func (c *Controller) permissionInput() PermissionInput {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := PermissionInput{
		SubscriptionLoaded: c.state.SubscriptionLoaded,
		TeamManagement:     c.state.Entitlements.TeamManagement,
		IsTeamMember:       c.state.IsTeamMember,
	}
	if c.state.CurrentMembership != nil {
		in.Role = c.state.CurrentMembership.Role
	}
	return in
}

func (c *Controller) accountHolderName() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CurrentMembership != nil {
		return c.state.CurrentMembership.AccountHolderEmail
	}
	return c.cfg.User.DisplayName
}

func (c *Controller) refreshInvitations(ctx context.Context, accountHolderID string) {
	invitations, err := c.cfg.Directory.GetInvitationsForAccount(ctx, accountHolderID)
	if err != nil {
		c.recordError(err)
		return
	}
	if invitations == nil {
		invitations = []models.TeamInvitation{}
	}

	c.mu.Lock()
	c.state.TeamInvitations = invitations
	c.mu.Unlock()
}
