package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/models"
)

type EmailConfig struct {
	Addr     string // host:port of the submission server
	Username string
	Password string
	From     string
	To       []string
}

type sendMailFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// EmailSink mails each notification through an SMTP submission server.
type EmailSink struct {
	config   EmailConfig
	sendMail sendMailFunc
	logger   *zap.Logger
}

func NewEmailSink(config EmailConfig, logger *zap.Logger) *EmailSink {
	return &EmailSink{config: config, sendMail: smtp.SendMail, logger: logger}
}

func (s *EmailSink) Notify(ctx context.Context, n models.Notification) error {
	if len(s.config.To) == 0 {
		return fmt.Errorf("email notify: no recipients configured")
	}

	var auth sasl.Client
	if s.config.Username != "" {
		auth = sasl.NewPlainClient("", s.config.Username, s.config.Password)
	}

	msg := buildEmail(s.config.From, s.config.To, n)
	if err := s.sendMail(s.config.Addr, auth, s.config.From, s.config.To, bytes.NewReader(msg)); err != nil {
		s.logger.Error("Failed to send notification email",
			zap.Error(err),
			zap.String("addr", s.config.Addr),
			zap.String("notification_id", n.ID))
		return fmt.Errorf("email notify: %w", err)
	}
	return nil
}

func buildEmail(from string, to []string, n models.Notification) []byte {
	when := time.UnixMilli(n.Date).UTC()
	subject := fmt.Sprintf("Transaction SMS from %s", sanitizeHeader(n.Address))

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "X-Bankwatch-Notification: %s\r\n", n.ID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Sender: %s\r\n", n.Address)
	fmt.Fprintf(&b, "Received: %s\r\n", when.Format(time.RFC3339))
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(n.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return b.Bytes()
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
