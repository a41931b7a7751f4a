package mail

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
)

const (
	implicitTLSPort = 465
	smtpDialTimeout = 15 * time.Second
)

// SMTPSender delivers through an SMTP relay. Port 465 uses implicit TLS; other
// ports upgrade with STARTTLS when UseTLS is set.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	sender   Sender
}

// NewSMTPSender constructs the sender.
func NewSMTPSender(cfg config.SMTPSettings, sender Sender) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(sender.Email) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		host:     cfg.Host,
		port:     port,
		username: cfg.Username,
		password: cfg.Password,
		useTLS:   cfg.UseTLS,
		sender:   sender,
	}, nil
}

// Name implements Provider.
func (s *SMTPSender) Name() string { return "smtp" }

// Send implements port.Mailer.
func (s *SMTPSender) Send(ctx context.Context, msg port.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	payload, err := buildMessage(s.sender, msg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var conn net.Conn
	if s.port == implicitTLSPort {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.useTLS && s.port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server %s does not offer STARTTLS", s.host)
		}
		if err := client.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if s.username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.sender.Email); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}

// buildMessage renders a multipart/alternative message with plain and HTML parts.
func buildMessage(from Sender, msg port.Message) ([]byte, error) {
	fromHeader := from.Email
	if strings.TrimSpace(from.Name) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", from.Name), from.Email)
	}
	toHeader := msg.To
	if strings.TrimSpace(msg.ToName) != "" {
		toHeader = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", msg.ToName), msg.To)
	}

	headers := []string{
		"From: " + fromHeader,
		"To: " + toHeader,
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"MIME-Version: 1.0",
	}

	if msg.HTMLBody == "" {
		headers = append(headers, `Content-Type: text/plain; charset="UTF-8"`)
		return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.PlainBody), nil
	}

	boundary, err := newBoundary()
	if err != nil {
		return nil, err
	}
	headers = append(headers, fmt.Sprintf(`Content-Type: multipart/alternative; boundary="%s"`, boundary))

	var b strings.Builder
	b.WriteString(strings.Join(headers, "\r\n"))
	b.WriteString("\r\n\r\n")
	if msg.PlainBody != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s\r\n", boundary, msg.PlainBody)
	}
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String()), nil
}

func newBoundary() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate mime boundary: %w", err)
	}
	return "alumni-" + hex.EncodeToString(buf), nil
}
