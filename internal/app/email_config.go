package app

import (
	"strings"

	"github.com/charlesng35/bizcore/pkg/mail"
)

// SMTPSettings converts EmailConfig to the mail package representation. An
// empty sender falls back to the SMTP username when that is an address.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	smtp := c.SMTP
	from := strings.TrimSpace(smtp.From)
	if from == "" && strings.Contains(smtp.Username, "@") {
		from = strings.TrimSpace(smtp.Username)
	}
	return mail.SMTPSettings{
		Enabled:  smtp.Enabled,
		Host:     strings.TrimSpace(smtp.Host),
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     from,
		UseTLS:   smtp.UseTLS,
		Timeout:  smtp.Timeout,
	}
}
