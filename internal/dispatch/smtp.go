package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/matchguard/matchguard/params"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers one-time codes by email.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func (s *SMTPSender) Send(ctx context.Context, destination string, code string, purpose string) (Receipt, error) {
	receipt := Receipt{
		MaskedDestination: MaskDestination(destination),
		ExpiresAt:         time.Now().Add(params.TwoFactorSMSCodeTTL),
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", destination)
	msg.SetHeader("Subject", fmt.Sprintf("%s is your verification code", code))
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your verification code is %s. It expires in %d minutes.\n\nIf you did not request this code, secure your account immediately.",
		code, int(params.TwoFactorSMSCodeTTL.Minutes())))

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()
	select {
	case err := <-done:
		if err != nil {
			return receipt, err
		}
	case <-ctx.Done():
		return receipt, ctx.Err()
	}

	receipt.Success = true
	return receipt, nil
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}
