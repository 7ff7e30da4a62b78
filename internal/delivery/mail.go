package delivery

import (
	"bytes"
	"context"
	"fisconforme-backend/internal/components/telemetry"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

const report_mail_send = "mail.send"

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// Mailer sends the archive as an attachment to the delivery recipient, the
// tenant address when no recipient is set.
type Mailer struct {
	config SmtpConfig
	tel    telemetry.API
}

func NewMailer(config SmtpConfig, tel telemetry.API) Mailer {
	return Mailer{config: config, tel: telemetry.NewScopedAPI("delivery", tel)}
}

func (m Mailer) Deliver(ctx context.Context, d Delivery) error {
	recipient := d.Recipient
	if recipient == "" {
		recipient = d.Tenant
	}
	if !strings.Contains(recipient, "@") {
		return fmt.Errorf("mail: %q is not an email address", recipient)
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("FisConforme <%s>", m.config.EmailAddress)
	mail.To = []string{recipient}
	mail.Subject = fmt.Sprintf("DAREs %s", d.FileName)
	mail.Text = []byte(fmt.Sprintf(`Segue em anexo o arquivo %s com as guias DARE emitidas.

%s
`, d.FileName, d.Summary))
	_, err := mail.Attach(bytes.NewReader(d.Archive), d.FileName, "application/zip")
	if err != nil {
		return fmt.Errorf("mail: attach: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err = mail.Send(addr, smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		m.tel.ReportBroken(report_mail_send, err, recipient)
		return fmt.Errorf("mail: send: %w", err)
	}
	m.tel.ReportDebug("mail.send: delivered", recipient, d.FileName)
	return nil
}
