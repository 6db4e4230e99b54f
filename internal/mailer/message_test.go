package mailer

import (
	"bytes"
	"io"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/phishdrill/internal/models"
)

func testTarget() *models.Target {
	return &models.Target{
		ID:         3,
		Email:      "jane@example.com",
		FirstName:  "Jane",
		LastName:   "Doe",
		Department: "R&D",
	}
}

func TestRender_Personalises(t *testing.T) {
	tmpl := &models.Template{
		Subject:     "Action needed, {{.FirstName}}",
		BodyContent: "<p>Hi {{.FirstName}} {{.LastName}} from {{.Department}}</p>",
	}

	subject, body := Render(tmpl, testTarget(), 7, "https://drill.example.com")

	assert.Equal(t, "Action needed, Jane", subject)
	assert.Contains(t, body, "<p>Hi Jane Doe from R&amp;D</p>")
}

func TestRender_InvalidTemplateUsesRawText(t *testing.T) {
	tmpl := &models.Template{
		Subject:     "Broken {{.FirstName",
		BodyContent: "<p>{{if}}</p>",
	}

	subject, body := Render(tmpl, testTarget(), 1, "http://localhost:3000")

	assert.Equal(t, "Broken {{.FirstName", subject)
	assert.True(t, strings.HasPrefix(body, "<p>{{if}}</p>"))
}

func TestRender_RewritesLinks(t *testing.T) {
	tmpl := &models.Template{
		Subject: "Reset",
		BodyContent: `<a href="https://evil.example/login?x=1">Reset</a> ` +
			`<a href='http://phishing-link'>Here</a> ` +
			`<a href="mailto:it@example.com">IT</a>`,
	}

	_, body := Render(tmpl, testTarget(), 42, "https://drill.example.com/")

	assert.Contains(t, body, `href="https://drill.example.com/t/42/click"`)
	assert.Contains(t, body, `href='https://drill.example.com/t/42/click'`)
	assert.Contains(t, body, `href="mailto:it@example.com"`)
	assert.NotContains(t, body, "evil.example")
	assert.NotContains(t, body, "phishing-link")
}

func TestRender_Pixel(t *testing.T) {
	pixel := `<img src="https://drill.example.com/t/5/open.gif"`

	_, body := Render(&models.Template{BodyContent: "<p>x</p>"}, testTarget(), 5, "https://drill.example.com")
	assert.True(t, strings.HasPrefix(body, "<p>x</p>"+pixel))

	_, body = Render(&models.Template{BodyContent: "<html><body><p>x</p></body></html>"}, testTarget(), 5, "https://drill.example.com")
	assert.Contains(t, body, "<p>x</p>"+pixel)
	assert.True(t, strings.HasSuffix(body, "</body></html>"))
}

func TestMessage_Bytes(t *testing.T) {
	msg := &Message{
		From:    mail.Address{Name: "IT Service Desk", Address: "it@drill.example.com"},
		To:      "jane@example.com",
		Subject: "Passwort läuft ab",
		HTML:    "<p>" + strings.Repeat("long line ", 20) + "</p>",
		ID:      newMessageID("drill.example.com"),
		Date:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		Result:  12,
	}

	data, err := msg.Bytes()
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(data))
	require.NoError(t, err)

	from, err := parsed.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "IT Service Desk", from[0].Name)
	assert.Equal(t, "it@drill.example.com", from[0].Address)

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Passwort läuft ab", subject)

	assert.Equal(t, "12", parsed.Header.Get(ResultHeader))
	assert.Equal(t, "1.0", parsed.Header.Get("MIME-Version"))
	assert.True(t, strings.HasSuffix(parsed.Header.Get("Message-ID"), "@drill.example.com>"))

	date, err := parsed.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(msg.Date))

	body, err := io.ReadAll(quotedprintable.NewReader(parsed.Body))
	require.NoError(t, err)
	assert.Equal(t, msg.HTML, strings.TrimRight(string(body), "\r\n"))
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("User@Example.com"))
	assert.Equal(t, "", domainOf("nobody"))
	assert.Equal(t, "", domainOf("trailing@"))
	assert.Equal(t, "<", newMessageID("")[:1])
	assert.Contains(t, newMessageID(""), "@localhost>")
}
