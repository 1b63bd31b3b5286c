package email

import (
	"fmt"
	"net/smtp"

	"bookhaven/common"
	"bookhaven/models"
)

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
}

// NewEmailService builds the mailer from config. Returns nil when SMTP is
// not configured; callers treat a nil service as "emails disabled".
func NewEmailService(cfg *common.Config) *EmailService {
	if cfg.SMTPHost == "" {
		return nil
	}

	return &EmailService{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
	}
}

func (e *EmailService) SendOrderConfirmation(to, name string, book *models.Book) error {
	subject := "Your Bookhaven order: " + book.Title

	body := fmt.Sprintf(`Hello %s,

Thanks for your order!

  %s by %s
  Price: %.2f

We will be in touch when it ships.

---
Bookhaven
`, name, book.Title, book.Author, book.Price)

	message := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", e.from, to, subject, body)

	auth := smtp.PlainAuth("", e.user, e.password, e.host)
	addr := fmt.Sprintf("%s:%s", e.host, e.port)

	if err := smtp.SendMail(addr, auth, e.from, []string{to}, []byte(message)); err != nil {
		return fmt.Errorf("error sending email: %v", err)
	}

	return nil
}
