// Package email envía notificaciones de seguridad (MFA habilitado/deshabilitado,
// backup codes regenerados). Siempre best-effort: un fallo de SMTP nunca corta
// el flujo de autenticación.
package email

import (
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/jalgreatworks0/clientforge-auth/internal/observability/logger"
)

// Notifier envía los avisos de seguridad por SMTP.
type Notifier struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	InsecureSkipVerify bool
}

func New(host string, port int, from, user, pass string) *Notifier {
	return &Notifier{Host: host, Port: port, From: from, User: user, Pass: pass}
}

func (n *Notifier) send(to, subject, textBody string) {
	if n == nil || n.Host == "" || to == "" {
		return
	}
	log := logger.L().With(
		logger.Component("email"),
		logger.String("to", to),
		logger.String("subject", subject),
	)

	m := mail.NewMessage()
	m.SetHeader("From", n.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", textBody)

	d := mail.NewDialer(n.Host, n.Port, n.User, n.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         n.Host,
		InsecureSkipVerify: n.InsecureSkipVerify, // solo dev
	}

	// best-effort: log y seguir
	if err := d.DialAndSend(m); err != nil {
		log.Warn("security notification failed", logger.Err(err))
		return
	}
	log.Debug("security notification sent")
}

// MFAEnabled avisa que se habilitó MFA en la cuenta.
func (n *Notifier) MFAEnabled(to string) {
	n.send(to, "Two-factor authentication enabled",
		"Two-factor authentication was enabled on your ClientForge account.\n\n"+
			"If this wasn't you, contact your administrator immediately.")
}

// MFADisabled avisa que se deshabilitó MFA.
func (n *Notifier) MFADisabled(to string) {
	n.send(to, "Two-factor authentication disabled",
		"Two-factor authentication was disabled on your ClientForge account.\n\n"+
			"If this wasn't you, contact your administrator immediately.")
}

// BackupCodesRegenerated avisa que se regeneró el lote de códigos.
func (n *Notifier) BackupCodesRegenerated(to string, count int) {
	n.send(to, "Backup codes regenerated",
		fmt.Sprintf("A new set of %d backup codes was generated for your ClientForge account.\n"+
			"Previous codes no longer work.\n\n"+
			"If this wasn't you, contact your administrator immediately.", count))
}
