package mailer

import (
	"bytes"
	"fmt"
	htmlTemplate "html/template"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	textTemplate "text/template"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phishdrill/internal/models"
)

// ResultHeader carries the result id on every outgoing message
const ResultHeader = "X-Phishdrill-Result"

var hrefPattern = regexp.MustCompile(`(?i)href\s*=\s*(["'])https?://[^"']*(["'])`)

// Recipient is the data available to subject and body templates
type Recipient struct {
	FirstName  string
	LastName   string
	Email      string
	Department string
}

func recipientOf(t *models.Target) Recipient {
	return Recipient{
		FirstName:  t.FirstName,
		LastName:   t.LastName,
		Email:      t.Email,
		Department: t.Department,
	}
}

// Message is a rendered simulated phish for one result
type Message struct {
	From    mail.Address
	To      string
	Subject string
	HTML    string
	ID      string
	Date    time.Time
	Result  int64
}

// Render personalises a template for one target and rewires its links
// through the tracking endpoints under baseURL.
func Render(tmpl *models.Template, target *models.Target, resultID int64, baseURL string) (subject, body string) {
	data := recipientOf(target)

	subject = renderText(tmpl.Subject, data)
	body = renderHTML(tmpl.BodyContent, data)

	base := strings.TrimRight(baseURL, "/")
	prefix := base + "/t/" + strconv.FormatInt(resultID, 10)

	body = hrefPattern.ReplaceAllString(body, `href=${1}`+prefix+`/click${2}`)

	pixel := fmt.Sprintf(`<img src="%s/open.gif" width="1" height="1" alt="" style="display:none">`, prefix)
	if i := strings.LastIndex(strings.ToLower(body), "</body>"); i >= 0 {
		body = body[:i] + pixel + body[i:]
	} else {
		body += pixel
	}

	return subject, body
}

// renderText falls back to the raw text when it is not a valid template
func renderText(raw string, data Recipient) string {
	t, err := textTemplate.New("subject").Option("missingkey=zero").Parse(raw)
	if err != nil {
		return raw
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return raw
	}
	return buf.String()
}

// renderHTML escapes target fields; the template markup itself is trusted
func renderHTML(raw string, data Recipient) string {
	t, err := htmlTemplate.New("body").Option("missingkey=zero").Parse(raw)
	if err != nil {
		return raw
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return raw
	}
	return buf.String()
}

// newMessageID returns a Message-ID value for domain
func newMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

// domainOf returns the part of addr after the last @
func domainOf(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// Bytes serialises the message as RFC 5322 with a quoted-printable HTML body
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer

	header := func(name, value string) {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(value)
		buf.WriteString("\r\n")
	}

	header("From", m.From.String())
	header("To", (&mail.Address{Address: m.To}).String())
	header("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	header("Date", m.Date.Format(time.RFC1123Z))
	header("Message-ID", m.ID)
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "quoted-printable")
	header(ResultHeader, strconv.FormatInt(m.Result, 10))
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(m.HTML)); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode body: %w", err)
	}
	buf.WriteString("\r\n")

	return buf.Bytes(), nil
}
