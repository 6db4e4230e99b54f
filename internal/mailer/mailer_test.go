package mailer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/phishdrill/internal/config"
	"github.com/foxzi/phishdrill/internal/metrics"
	"github.com/foxzi/phishdrill/internal/models"
)

type received struct {
	from string
	to   []string
	data []byte
	user string
	helo string
	tls  bool
}

// relay is an in-process SMTP server recording every accepted message
type relay struct {
	mu       sync.Mutex
	messages []received
	username string
	password string
	rejectTo string
}

func (r *relay) NewSession(c *smtp.Conn) (smtp.Session, error) {
	_, isTLS := c.TLSConnectionState()
	return &relaySession{relay: r, msg: received{helo: c.Hostname(), tls: isTLS}}, nil
}

func (r *relay) all() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.messages...)
}

type relaySession struct {
	relay *relay
	msg   received
}

func (s *relaySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *relaySession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.relay.username || password != s.relay.password {
			return errors.New("invalid credentials")
		}
		s.msg.user = username
		return nil
	}), nil
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	if s.relay.username != "" && s.msg.user == "" {
		return smtp.ErrAuthRequired
	}
	s.msg.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if to == s.relay.rejectTo {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = data

	s.relay.mu.Lock()
	s.relay.messages = append(s.relay.messages, s.msg)
	s.relay.mu.Unlock()
	return nil
}

func (s *relaySession) Reset() {
	s.msg = received{user: s.msg.user, helo: s.msg.helo, tls: s.msg.tls}
}

func (s *relaySession) Logout() error {
	return nil
}

func startRelay(t *testing.T, r *relay) string {
	t.Helper()
	return startRelayTLS(t, r, nil)
}

// startRelayTLS advertises STARTTLS when tlsConfig is set
func startRelayTLS(t *testing.T, r *relay, tlsConfig *tls.Config) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := smtp.NewServer(r)
	srv.Domain = "localhost"
	srv.TLSConfig = tlsConfig
	srv.AllowInsecureAuth = true
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	go func() {
		_ = srv.Serve(l)
	}()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	return l.Addr().String()
}

// selfSignedTLS builds a server config with a throwaway certificate for 127.0.0.1
func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "relay.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(addr string) config.MailerConfig {
	return config.MailerConfig{
		Enabled:  true,
		Addr:     addr,
		Security: config.SecurityNone,
		From:     "it@drill.example.com",
		FromName: "IT Service Desk",
		Hostname: "phishdrill.test",
		BaseURL:  "https://drill.example.com",
		Timeout:  5 * time.Second,
	}
}

func testDeliveries() []Delivery {
	return []Delivery{
		{
			Result: models.Result{ID: 1, CampaignID: 9, TargetID: 1},
			Target: models.Target{ID: 1, Email: "jane@example.com", FirstName: "Jane"},
		},
		{
			Result: models.Result{ID: 2, CampaignID: 9, TargetID: 2},
			Target: models.Target{ID: 2, Email: "bob@example.com", FirstName: "Bob"},
		},
	}
}

var testTemplate = &models.Template{
	Subject:     "Password expiry for {{.FirstName}}",
	BodyContent: `<p>Hello {{.FirstName}}, <a href="http://phishing-link">renew now</a></p>`,
}

func TestMailer_Deliver(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	t.Cleanup(func() { metrics.SetGlobal(nil) })

	r := &relay{}
	mailer, err := New(testConfig(startRelay(t, r)), testLogger())
	require.NoError(t, err)
	require.True(t, mailer.Enabled())

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries())
	assert.Equal(t, Report{Delivered: 2}, report)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EmailsTotal.WithLabelValues("sent")))

	msgs := r.all()
	require.Len(t, msgs, 2)

	assert.Equal(t, "it@drill.example.com", msgs[0].from)
	assert.Equal(t, []string{"jane@example.com"}, msgs[0].to)
	assert.Equal(t, []string{"bob@example.com"}, msgs[1].to)

	parsed, err := mail.ReadMessage(bytes.NewReader(msgs[1].data))
	require.NoError(t, err)
	assert.Equal(t, "Password expiry for Bob", parsed.Header.Get("Subject"))
	assert.Equal(t, "2", parsed.Header.Get(ResultHeader))

	raw := string(msgs[1].data)
	assert.Contains(t, raw, "https://drill.example.com/t/2/click")
	assert.Contains(t, raw, "https://drill.example.com/t/2/open.gif")
	assert.NotContains(t, raw, "phishing-link")
}

func TestMailer_DeliverWithAuth(t *testing.T) {
	r := &relay{username: "drill", password: "s3cret"}
	addr := startRelay(t, r)

	cfg := testConfig(addr)
	cfg.Username = "drill"
	cfg.Password = "s3cret"

	mailer, err := New(cfg, testLogger())
	require.NoError(t, err)

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries()[:1])
	assert.Equal(t, Report{Delivered: 1}, report)

	msgs := r.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "drill", msgs[0].user)

	cfg.Password = "wrong"
	mailer, err = New(cfg, testLogger())
	require.NoError(t, err)

	report = mailer.Deliver(context.Background(), testTemplate, testDeliveries()[:1])
	assert.Equal(t, Report{Failed: 1}, report)
	assert.Len(t, r.all(), 1)
}

func TestMailer_DeliverCountsFailures(t *testing.T) {
	m := metrics.New()
	metrics.SetGlobal(m)
	t.Cleanup(func() { metrics.SetGlobal(nil) })

	r := &relay{rejectTo: "bob@example.com"}
	mailer, err := New(testConfig(startRelay(t, r)), testLogger())
	require.NoError(t, err)

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries())
	assert.Equal(t, Report{Delivered: 1, Failed: 1}, report)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmailsTotal.WithLabelValues("failed")))
	assert.Len(t, r.all(), 1)
}

func TestMailer_STARTTLSRequired(t *testing.T) {
	r := &relay{}
	cfg := testConfig(startRelay(t, r))
	cfg.Security = config.SecuritySTARTTLS

	mailer, err := New(cfg, testLogger())
	require.NoError(t, err)

	err = mailer.send(context.Background(), "jane@example.com", []byte("Subject: x\r\n\r\nx\r\n"))
	assert.ErrorIs(t, err, ErrSTARTTLSUnsupported)
	assert.Empty(t, r.all())
}

func TestMailer_DeliverOverSTARTTLS(t *testing.T) {
	r := &relay{username: "drill", password: "s3cret"}
	cfg := testConfig(startRelayTLS(t, r, selfSignedTLS(t)))
	cfg.Security = config.SecuritySTARTTLS
	cfg.InsecureSkipVerify = true
	cfg.Username = "drill"
	cfg.Password = "s3cret"

	mailer, err := New(cfg, testLogger())
	require.NoError(t, err)

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries())
	assert.Equal(t, Report{Delivered: 2}, report)

	msgs := r.all()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.True(t, msg.tls, "message accepted before the TLS upgrade")
		assert.Equal(t, "phishdrill.test", msg.helo)
		assert.Equal(t, "drill", msg.user)
	}
	assert.Equal(t, []string{"jane@example.com"}, msgs[0].to)
}

func TestMailer_STARTTLSBadCertificate(t *testing.T) {
	r := &relay{}
	cfg := testConfig(startRelayTLS(t, r, selfSignedTLS(t)))
	cfg.Security = config.SecuritySTARTTLS

	mailer, err := New(cfg, testLogger())
	require.NoError(t, err)

	err = mailer.send(context.Background(), "jane@example.com", []byte("Subject: x\r\n\r\nx\r\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSTARTTLSUnsupported)
	assert.Contains(t, err.Error(), "certificate")
	assert.Empty(t, r.all())
}

func TestMailer_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	mailer, err := New(testConfig(addr), testLogger())
	require.NoError(t, err)

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries())
	assert.Equal(t, Report{Failed: 2}, report)
}

func TestMailer_CancelledContext(t *testing.T) {
	r := &relay{}
	mailer, err := New(testConfig(startRelay(t, r)), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := mailer.Deliver(ctx, testTemplate, testDeliveries())
	assert.Equal(t, Report{Failed: 2}, report)
	assert.Empty(t, r.all())
}

func TestMailer_Disabled(t *testing.T) {
	mailer, err := New(config.MailerConfig{}, testLogger())
	require.NoError(t, err)
	assert.False(t, mailer.Enabled())

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries())
	assert.Equal(t, Report{}, report)

	var nilMailer *Mailer
	assert.False(t, nilMailer.Enabled())
}

func TestMailer_DKIM(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	keyFile := t.TempDir() + "/dkim.pem"
	require.NoError(t, SavePrivateKey(key, keyFile))

	r := &relay{}
	cfg := testConfig(startRelay(t, r))
	cfg.DKIM = config.DKIMConfig{Enabled: true, Domain: "drill.example.com", Selector: "sel1", KeyFile: keyFile}

	mailer, err := New(cfg, testLogger())
	require.NoError(t, err)

	report := mailer.Deliver(context.Background(), testTemplate, testDeliveries()[:1])
	require.Equal(t, Report{Delivered: 1}, report)

	msgs := r.all()
	require.Len(t, msgs, 1)
	parsed, err := mail.ReadMessage(bytes.NewReader(msgs[0].data))
	require.NoError(t, err)
	assert.Contains(t, parsed.Header.Get("DKIM-Signature"), "d=drill.example.com")

	cfg.DKIM.KeyFile = t.TempDir() + "/absent.pem"
	_, err = New(cfg, testLogger())
	assert.Error(t, err)
}
