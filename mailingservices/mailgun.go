package mailingservices

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/stellamgmt/stella/config"
)

// Mailgun wraps the mailgun client for transactional mail.
type Mailgun struct {
	Client *mailgun.MailgunImpl
	From   string
}

func (m *Mailgun) Init(c *config.Config) {
	m.Client = mailgun.NewMailgun(c.MgDomain, c.MailgunApiKey)
	m.From = c.MgEmailFrom
}

// SendResetPasswordMail mails the password-reset link to the recipient.
func (m *Mailgun) SendResetPasswordMail(recipient, resetLink string) error {
	if m.Client == nil {
		return fmt.Errorf("mailgun client is not initialized")
	}
	subject := "Reset your password"
	body := fmt.Sprintf("A password reset was requested for your account.\n\nReset it here: %s\n\nIf you did not request this, you can ignore this mail.", resetLink)

	message := m.Client.NewMessage(m.From, subject, body, recipient)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := m.Client.Send(ctx, message)
	return err
}
