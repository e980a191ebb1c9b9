package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/receiptly/team-api/internal/models"
	"github.com/receiptly/team-api/internal/repository"
)

// Service persists team lifecycle notifications and fans them out to the
// configured notifiers. It satisfies the access controller's Notifier
// dependency.
type Service interface {
	NotifyInvitationSent(ctx context.Context, invitation models.TeamInvitation, token string) error
	NotifyInvitationRevoked(ctx context.Context, accountHolderID, invitationID string) error
	NotifyMemberJoined(ctx context.Context, member models.TeamMember) error
	NotifyMemberRemoved(ctx context.Context, accountHolderID, memberID string) error
	NotifyAccessRevoked(ctx context.Context, userID, reason string) error
	ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error)
}

type Event struct {
	UserID   string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type service struct {
	repo         repository.NotificationRepository
	mailer       InviteMailer
	inviteURLTpl string
	logger       zerolog.Logger
	notifiers    []Notifier
}

func NewService(repo repository.NotificationRepository, mailer InviteMailer, inviteURLTpl string, logger zerolog.Logger, notifiers ...Notifier) Service {
	if inviteURLTpl == "" {
		inviteURLTpl = "https://app.receiptly.dev/invite/accept?token=%s"
	}
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:         repo,
		mailer:       mailer,
		inviteURLTpl: inviteURLTpl,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		notifiers:    active,
	}
}

func (s *service) publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}

	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	}
	if uid := strings.TrimSpace(evt.UserID); uid != "" {
		params.UserID = &uid
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}

	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			s.logger.Warn().Err(err).
				Str("channel", notifierChannelName(notifier)).
				Str("notification_id", notif.ID).
				Msg("notification delivery failed")
		}
	}

	return notif, nil
}

func (s *service) NotifyInvitationSent(ctx context.Context, invitation models.TeamInvitation, token string) error {
	if s.mailer != nil {
		inviteURL := fmt.Sprintf(s.inviteURLTpl, token)
		if err := s.mailer.SendInvite(invitation.InviteEmail, invitation.AccountHolderName, inviteURL); err != nil {
			// The invitation already exists; the holder can re-share the link.
			s.logger.Error().Err(err).Str("invitation_id", invitation.ID).Msg("failed to email invitation")
		}
	}

	_, err := s.publish(ctx, Event{
		UserID:   invitation.AccountHolderID,
		Event:    models.NotificationEventInvitationSent,
		Severity: models.NotificationSeverityInfo,
		Title:    "Invitation sent",
		Message:  fmt.Sprintf("Invited %s to join the team as %s.", invitation.InviteEmail, invitation.Role),
		Metadata: map[string]interface{}{
			"invitation_id": invitation.ID,
			"invite_email":  invitation.InviteEmail,
			"role":          string(invitation.Role),
		},
	})
	return err
}

func (s *service) NotifyInvitationRevoked(ctx context.Context, accountHolderID, invitationID string) error {
	_, err := s.publish(ctx, Event{
		UserID:   accountHolderID,
		Event:    models.NotificationEventInvitationRevoked,
		Severity: models.NotificationSeverityInfo,
		Title:    "Invitation revoked",
		Message:  "A pending team invitation was withdrawn.",
		Metadata: map[string]interface{}{"invitation_id": invitationID},
	})
	return err
}

func (s *service) NotifyMemberJoined(ctx context.Context, member models.TeamMember) error {
	_, err := s.publish(ctx, Event{
		UserID:   member.AccountHolderID,
		Event:    models.NotificationEventMemberJoined,
		Severity: models.NotificationSeverityInfo,
		Title:    "New team member",
		Message:  fmt.Sprintf("%s joined the team as %s.", member.Email, member.Role),
		Metadata: map[string]interface{}{
			"member_id": member.ID,
			"user_id":   member.UserID,
			"role":      string(member.Role),
		},
	})
	return err
}

func (s *service) NotifyMemberRemoved(ctx context.Context, accountHolderID, memberID string) error {
	_, err := s.publish(ctx, Event{
		UserID:   accountHolderID,
		Event:    models.NotificationEventMemberRemoved,
		Severity: models.NotificationSeverityInfo,
		Title:    "Team member removed",
		Message:  "A member was removed from the team.",
		Metadata: map[string]interface{}{"member_id": memberID},
	})
	return err
}

func (s *service) NotifyAccessRevoked(ctx context.Context, userID, reason string) error {
	_, err := s.publish(ctx, Event{
		UserID:   userID,
		Event:    models.NotificationEventAccessRevoked,
		Severity: models.NotificationSeverityError,
		Title:    "Team access revoked",
		Message:  fmt.Sprintf("You have been signed out: %s", reason),
		Metadata: map[string]interface{}{"reason": reason},
	})
	return err
}

func (s *service) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, userID, limit)
}

func (s *service) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, userID, notificationID)
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
