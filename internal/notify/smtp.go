package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	otpSubject = "Mobile CRM - Password Reset OTP"

	// implicitTLSPort is the SMTPS port, where TLS starts before the greeting.
	implicitTLSPort = 465
	dialTimeout     = 10 * time.Second
)

var otpBody = template.Must(template.New("otp").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #4f46e5;">Password Reset Request</h2>
  <p>You requested a password reset for your Mobile CRM account.</p>
  <p>Your One-Time Password (OTP) is:</p>
  <h1 style="color: #333; letter-spacing: 5px; background: #f3f4f6; padding: 10px; text-align: center; border-radius: 5px;">{{.Code}}</h1>
  <p>This OTP is valid for {{.Minutes}} minutes. Do not share this with anyone.</p>
  <p>If you did not request this, please ignore this email.</p>
</div>
`))

// SMTPConfig configures the relay used for OTP mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// ImplicitTLS dials straight into TLS instead of upgrading with
	// STARTTLS. It is switched on for port 465.
	ImplicitTLS bool
}

// SMTPMailer sends OTP mail through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg       SMTPConfig
	now       func() time.Time
	tlsConfig *tls.Config
	send      func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer returns a mailer for cfg. From defaults to Username and Port
// to 587 (STARTTLS).
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Port == implicitTLSPort {
		cfg.ImplicitTLS = true
	}
	m := &SMTPMailer{
		cfg:       cfg,
		now:       time.Now,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		send:      smtp.SendMail,
	}
	if cfg.ImplicitTLS {
		m.send = m.sendImplicitTLS
	}
	return m
}

// SendOTP renders the OTP email and hands it to the relay.
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("recipient is required")
	}
	msg, err := m.buildMessage(to, code, expiresAt)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	// smtp.SendMail has no context; run it aside so cancellation still returns promptly.
	done := make(chan error, 1)
	go func() { done <- m.send(addr, auth, m.cfg.From, []string{to}, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) buildMessage(to, code string, expiresAt time.Time) ([]byte, error) {
	minutes := int(expiresAt.Sub(m.now()).Round(time.Minute) / time.Minute)
	if minutes <= 0 {
		minutes = 1
	}

	var body bytes.Buffer
	if err := otpBody.Execute(&body, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: minutes}); err != nil {
		return nil, fmt.Errorf("render otp email: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", otpSubject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// sendImplicitTLS mirrors smtp.SendMail over a connection that is TLS from
// the first byte.
func (m *SMTPMailer) sendImplicitTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, m.tlsConfig)
	if err != nil {
		return err
	}
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
