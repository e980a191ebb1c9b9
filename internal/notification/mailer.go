package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"
	"github.com/receiptly/team-api/internal/config"
)

// InviteMailer sends the invitation email carrying the single-use accept
// link. The raw token only ever travels through this path.
type InviteMailer interface {
	SendInvite(to, accountHolderName, inviteURL string) error
}

type smtpInviteMailer struct {
	cfg config.EmailConfig
}

func NewSMTPInviteMailer(cfg config.EmailConfig) (InviteMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("sender address is required")
	}
	return &smtpInviteMailer{cfg: cfg}, nil
}

func (m *smtpInviteMailer) SendInvite(to, accountHolderName, inviteURL string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}

	inviter := strings.TrimSpace(accountHolderName)
	if inviter == "" {
		inviter = "A Receiptly user"
	}

	subject := fmt.Sprintf("%s invited you to their Receiptly team", inviter)
	body := fmt.Sprintf(
		"%s has invited you to join their team on Receiptly.\r\n\r\n"+
			"Accept the invitation here:\r\n%s\r\n\r\n"+
			"The link is single use and expires; if you were not expecting this email you can ignore it.\r\n",
		inviter, inviteURL,
	)

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return errors.Wrap(err, "send invite email")
	}

	return nil
}

func (m *smtpInviteMailer) String() string { return "smtp" }
