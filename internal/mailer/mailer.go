// Package mailer delivers launched campaigns to their targets over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/phishdrill/internal/config"
	"github.com/foxzi/phishdrill/internal/metrics"
	"github.com/foxzi/phishdrill/internal/models"
)

// ErrSTARTTLSUnsupported is returned when the server does not offer STARTTLS
var ErrSTARTTLSUnsupported = errors.New("server does not support STARTTLS")

// Delivery pairs a created result with the target it was created for
type Delivery struct {
	Result models.Result
	Target models.Target
}

// Report summarises one Deliver call
type Report struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Mailer submits simulated phishing messages to a relay
type Mailer struct {
	cfg    config.MailerConfig
	signer *DKIMSigner
	logger *slog.Logger
}

// New creates a mailer. A disabled config yields a mailer that sends nothing.
func New(cfg config.MailerConfig, logger *slog.Logger) (*Mailer, error) {
	m := &Mailer{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
	}

	if cfg.Enabled && cfg.DKIM.Enabled {
		signer, err := NewDKIMSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
		if err != nil {
			return nil, err
		}
		m.signer = signer
		m.logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
	}

	return m, nil
}

// Enabled reports whether launches should send mail
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Enabled
}

// Deliver sends one message per delivery. Failures are logged and counted,
// never returned.
func (m *Mailer) Deliver(ctx context.Context, tmpl *models.Template, deliveries []Delivery) Report {
	var report Report
	if !m.Enabled() {
		return report
	}

	for _, d := range deliveries {
		if err := ctx.Err(); err != nil {
			m.logger.Warn("delivery cancelled", "remaining", len(deliveries)-report.Delivered-report.Failed, "error", err)
			report.Failed += len(deliveries) - report.Delivered - report.Failed
			break
		}

		if err := m.deliverOne(ctx, tmpl, d); err != nil {
			report.Failed++
			metrics.IncEmails("failed")
			m.logger.Error("delivery failed",
				"result_id", d.Result.ID,
				"campaign_id", d.Result.CampaignID,
				"to", d.Target.Email,
				"error", err,
			)
			continue
		}

		report.Delivered++
		metrics.IncEmails("sent")
		m.logger.Debug("message delivered", "result_id", d.Result.ID, "to", d.Target.Email)
	}

	return report
}

func (m *Mailer) deliverOne(ctx context.Context, tmpl *models.Template, d Delivery) error {
	subject, body := Render(tmpl, &d.Target, d.Result.ID, m.cfg.BaseURL)

	msg := &Message{
		From:    mail.Address{Name: m.cfg.FromName, Address: m.cfg.From},
		To:      d.Target.Email,
		Subject: subject,
		HTML:    body,
		ID:      newMessageID(domainOf(m.cfg.From)),
		Date:    time.Now(),
		Result:  d.Result.ID,
	}

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	if m.signer != nil {
		data, err = m.signer.Sign(data)
		if err != nil {
			return err
		}
	}

	return m.send(ctx, d.Target.Email, data)
}

// send submits one message in its own SMTP session
func (m *Mailer) send(ctx context.Context, to string, data []byte) error {
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	c, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(m.cfg.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return c.Quit()
}

// dial connects, greets, upgrades and authenticates per the configured security
func (m *Mailer) dial(ctx context.Context) (*smtp.Client, error) {
	host, _, err := net.SplitHostPort(m.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid mailer address %q: %w", m.cfg.Addr, err)
	}

	tlsConfig := &tls.Config{
		ServerName:         host,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: m.cfg.InsecureSkipVerify,
	}

	dialer := &net.Dialer{}
	var conn net.Conn
	if m.cfg.Security == config.SecurityTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", m.cfg.Addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", m.cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", m.cfg.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var c *smtp.Client
	if m.cfg.Security == config.SecuritySTARTTLS {
		c, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			if strings.Contains(err.Error(), "support STARTTLS") {
				return nil, ErrSTARTTLSUnsupported
			}
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}

	hostname := m.cfg.Hostname
	if hostname == "" {
		hostname = "localhost"
	}
	// the upgrade resets the session, so this EHLO runs inside TLS
	if err := c.Hello(hostname); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}

	if m.cfg.Username != "" {
		auth := sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	return c, nil
}
