package email

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/smallbiznis/crmbilling/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedMail struct {
	addr string
	from string
	to   []string
	raw  []byte
}

func newTestSMTP(captured *capturedMail) *SMTPProvider {
	p := NewSMTP(Config{
		Host:     "mail.test",
		Port:     2525,
		Username: "billing",
		Password: "secret",
		From:     "billing@crm.test",
		FromName: "CRM Billing",
	})
	p.now = func() time.Time { return time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC) }
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		*captured = capturedMail{addr: addr, from: from, to: to, raw: msg}
		return nil
	}
	return p
}

func TestSMTPSendsHTMLBody(t *testing.T) {
	var captured capturedMail
	p := newTestSMTP(&captured)

	err := p.Send(context.Background(), Message{
		To:      []string{" owner@tenant.test ", ""},
		Subject: "Invoice INV-25-00001",
		HTML:    "<p>Due soon</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "mail.test:2525", captured.addr)
	assert.Equal(t, "billing@crm.test", captured.from)
	assert.Equal(t, []string{"owner@tenant.test"}, captured.to)

	parsed, err := mail.ReadMessage(strings.NewReader(string(captured.raw)))
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-25-00001", parsed.Header.Get("Subject"))
	assert.Contains(t, parsed.Header.Get("Content-Type"), "text/html")
	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Equal(t, "<p>Due soon</p>", string(body))
}

func TestSMTPEncodesAttachments(t *testing.T) {
	var captured capturedMail
	p := newTestSMTP(&captured)
	pdf := []byte("%PDF-1.4 fake invoice")

	err := p.Send(context.Background(), Message{
		To:      []string{"owner@tenant.test"},
		Subject: "Invoice",
		HTML:    "<p>Attached</p>",
		Attachments: []Attachment{{
			Filename:    "INV-25-00001.pdf",
			ContentType: "application/pdf",
			Content:     pdf,
		}},
	})
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(strings.NewReader(string(captured.raw)))
	require.NoError(t, err)
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])
	htmlPart, err := reader.NextPart()
	require.NoError(t, err)
	html, err := io.ReadAll(htmlPart)
	require.NoError(t, err)
	assert.Equal(t, "<p>Attached</p>", string(html))

	attPart, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "INV-25-00001.pdf", attPart.FileName())
	assert.Equal(t, "application/pdf", attPart.Header.Get("Content-Type"))
	encoded, err := io.ReadAll(attPart)
	require.NoError(t, err)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, pdf, decoded)

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSendRejectsIncompleteMessages(t *testing.T) {
	var captured capturedMail
	p := newTestSMTP(&captured)

	err := p.Send(context.Background(), Message{Subject: "hi"})
	assert.ErrorIs(t, err, ErrNoRecipient)
	err = p.Send(context.Background(), Message{To: []string{"a@b.test"}, Subject: "  "})
	assert.ErrorIs(t, err, ErrNoSubject)
	assert.Nil(t, captured.raw)

	assert.ErrorIs(t, (&NoOpProvider{}).Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestSendGridBuildsMailWithAttachment(t *testing.T) {
	var sent *sgmail.SGMailV3
	p := NewSendGrid("key", "billing@crm.test", "CRM Billing")
	p.send = func(_ context.Context, m *sgmail.SGMailV3) (*rest.Response, error) {
		sent = m
		return &rest.Response{StatusCode: 202}, nil
	}

	err := p.Send(context.Background(), Message{
		To:          []string{"owner@tenant.test", "finance@tenant.test"},
		Subject:     "Invoice",
		HTML:        "<p>Attached</p>",
		Attachments: []Attachment{{Filename: "inv.pdf", ContentType: "application/pdf", Content: []byte("pdf")}},
	})
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Equal(t, "billing@crm.test", sent.From.Address)
	assert.Equal(t, "Invoice", sent.Subject)
	require.Len(t, sent.Personalizations, 1)
	assert.Len(t, sent.Personalizations[0].To, 2)
	require.Len(t, sent.Content, 1)
	assert.Equal(t, "text/html", sent.Content[0].Type)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pdf")), sent.Attachments[0].Content)
	assert.Equal(t, "attachment", sent.Attachments[0].Disposition)
}

func TestSendGridReportsRejectedStatus(t *testing.T) {
	p := NewSendGrid("key", "billing@crm.test", "CRM Billing")
	p.send = func(context.Context, *sgmail.SGMailV3) (*rest.Response, error) {
		return &rest.Response{StatusCode: 401, Body: "unauthorized"}, nil
	}
	err := p.Send(context.Background(), Message{To: []string{"a@b.test"}, Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	p.send = func(context.Context, *sgmail.SGMailV3) (*rest.Response, error) {
		return nil, errors.New("dial tcp: timeout")
	}
	err = p.Send(context.Background(), Message{To: []string{"a@b.test"}, Subject: "x"})
	assert.ErrorContains(t, err, "dial tcp")
}

func TestNewFromConfigSelectsProvider(t *testing.T) {
	cfg := config.Config{Email: config.EmailConfig{Provider: "smtp", SMTPHost: "mail.test", SMTPPort: 25}}
	assert.IsType(t, &SMTPProvider{}, NewFromConfig(cfg, zap.NewNop()))

	cfg.Email = config.EmailConfig{Provider: "sendgrid", SendGridAPIKey: "key"}
	assert.IsType(t, &SendGridProvider{}, NewFromConfig(cfg, zap.NewNop()))

	cfg.Email = config.EmailConfig{Provider: "sendgrid"}
	assert.IsType(t, &NoOpProvider{}, NewFromConfig(cfg, zap.NewNop()))

	cfg.Email = config.EmailConfig{}
	assert.IsType(t, &NoOpProvider{}, NewFromConfig(cfg, zap.NewNop()))
}
