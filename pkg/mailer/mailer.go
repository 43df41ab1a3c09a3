// Package mailer delivers composed campaign messages.
package mailer

import (
	"context"
	"fmt"

	"gopkg.in/mail.v2"

	"github.com/Mutter0815/quotamailer/internal/campaign"
	"github.com/Mutter0815/quotamailer/pkg/config"
	"github.com/Mutter0815/quotamailer/pkg/logx"
)

// SMTP authenticates as the message's sender account; each account has its own dialer.
type SMTP struct {
	dialers map[string]*mail.Dialer
}

func NewSMTP(cfg config.SMTPConfig, accounts []campaign.SenderAccount) *SMTP {
	s := &SMTP{dialers: make(map[string]*mail.Dialer, len(accounts))}
	for _, acc := range accounts {
		d := mail.NewDialer(cfg.Host, cfg.Port, acc.Email, acc.Password)
		d.SSL = cfg.SSL
		if cfg.Timeout > 0 {
			d.Timeout = cfg.Timeout
		}
		s.dialers[acc.Email] = d
	}
	return s
}

func (s *SMTP) Send(ctx context.Context, m campaign.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, ok := s.dialers[m.FromIdentity]
	if !ok {
		return fmt.Errorf("no smtp credentials for %s", m.FromIdentity)
	}
	return d.DialAndSend(BuildMessage(m))
}

func BuildMessage(m campaign.Message) *mail.Message {
	msg := mail.NewMessage()
	msg.SetAddressHeader("From", m.FromIdentity, m.FromDisplayName)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	for k, v := range m.Headers {
		msg.SetHeader(k, v)
	}
	msg.SetBody("text/html", m.HTMLBody)
	return msg
}

// DryRun logs messages instead of delivering them.
type DryRun struct{}

func (DryRun) Send(ctx context.Context, m campaign.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logx.L().Infow("dry_run_send",
		"from", m.FromIdentity,
		"to", m.To,
		"subject", m.Subject,
		"body_bytes", len(m.HTMLBody),
	)
	return nil
}
