package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"vigil/internal/platform/config"
)

// SMTPTransport delivers messages over SMTP with STARTTLS and plain auth.
type SMTPTransport struct {
	cfg config.Delivery
}

func NewSMTPTransport(cfg config.Delivery) *SMTPTransport {
	return &SMTPTransport{cfg: cfg}
}

// Send performs one delivery attempt: connect, STARTTLS, authenticate, hand
// off the message. Missing configuration fails before any dial.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if t.cfg.SMTPHost == "" || t.cfg.SMTPPort == 0 || t.cfg.SenderEmail == "" || t.cfg.Password == "" {
		return ErrConfigIncomplete
	}

	addr := net.JoinHostPort(t.cfg.SMTPHost, strconv.Itoa(t.cfg.SMTPPort))

	timeout := t.cfg.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	// One deadline covers the whole SMTP conversation.
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, t.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: t.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", t.cfg.SenderEmail, t.cfg.Password, t.cfg.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return authError(t.cfg.SenderEmail, err)
	}

	if err := client.Mail(t.cfg.SenderEmail); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return rcptError(msg.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(t.encode(msg)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish body: %w", err)
	}

	return client.Quit()
}

// encode assembles the MIME message with an HTML body.
func (t *SMTPTransport) encode(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", t.cfg.SenderName, t.cfg.SenderEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// replyClass extracts the SMTP reply code class from err: 5 for permanent
// rejections, 4 for transient ones, 0 when err carries no protocol reply.
func replyClass(err error) int {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code / 100
	}
	return 0
}

// authError maps an AUTH step failure. Only a permanent 5xx reply means the
// credentials are wrong; a 421/454-style transient reply or a transport
// failure stays retryable.
func authError(sender string, err error) error {
	if replyClass(err) == 5 {
		return fmt.Errorf("auth as %s: %w", sender, ErrAuthFailed)
	}
	return fmt.Errorf("auth: %w", err)
}

// rcptError maps an RCPT step failure the same way: 5xx rejects the
// recipient for good, anything else is worth another attempt.
func rcptError(to string, err error) error {
	if replyClass(err) == 5 {
		return fmt.Errorf("rcpt %s: %w", to, ErrRecipientRejected)
	}
	return fmt.Errorf("rcpt: %w", err)
}
