package smtp

import (
	"context"
	"fmt"
	"time"

	"github.com/coldmailer/coldmailer/internal/model"
	"github.com/wneessen/go-mail"
)

// Sender delivers rendered messages over the account's own relay.
// Every send dials fresh: accounts rotate too often for pooled
// connections to pay off at this volume.
type Sender struct {
	timeout time.Duration
}

func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sender{timeout: timeout}
}

// Verify dials the relay and authenticates without sending anything.
// Used when an account is registered so a typoed credential is caught
// immediately instead of on the first dispatch pass.
func (s *Sender) Verify(ctx context.Context, account model.SendingAccount, password string) error {
	client, err := mail.NewClient(account.SMTPHost,
		mail.WithPort(account.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(account.SMTPUsername),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(s.timeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client %s: %w", account.SMTPHost, err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("verify %s: %w", account.Email, err)
	}
	return client.Close()
}

// Send authenticates against the account's relay and delivers one HTML
// message. STARTTLS is mandatory; a relay that cannot upgrade fails the
// send rather than falling back to cleartext.
func (s *Sender) Send(ctx context.Context, account model.SendingAccount, password, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.FromFormat(account.DisplayName, account.Email); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	client, err := mail.NewClient(account.SMTPHost,
		mail.WithPort(account.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(account.SMTPUsername),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(s.timeout),
	)
	if err != nil {
		return fmt.Errorf("smtp client %s: %w", account.SMTPHost, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send via %s: %w", account.Email, err)
	}
	return nil
}
