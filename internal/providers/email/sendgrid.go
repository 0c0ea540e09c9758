package email

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridProvider struct {
	from     string
	fromName string
	send     func(ctx context.Context, m *mail.SGMailV3) (*rest.Response, error)
}

func NewSendGrid(apiKey, from, fromName string) *SendGridProvider {
	client := sendgrid.NewSendClient(apiKey)
	return &SendGridProvider{
		from:     from,
		fromName: fromName,
		send:     client.SendWithContext,
	}
}

func (p *SendGridProvider) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := p.send(ctx, p.build(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (p *SendGridProvider) build(msg Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(p.fromName, p.from))
	m.Subject = msg.Subject

	personalization := mail.NewPersonalization()
	for _, addr := range recipients(msg.To) {
		personalization.AddTos(mail.NewEmail("", addr))
	}
	m.AddPersonalizations(personalization)
	m.AddContent(mail.NewContent("text/html", msg.HTML))

	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetFilename(att.Filename)
		a.SetType(att.ContentType)
		a.SetDisposition("attachment")
		a.SetContent(base64.StdEncoding.EncodeToString(att.Content))
		m.AddAttachment(a)
	}

	// Transactional mail keeps links untouched.
	tracking := mail.NewTrackingSettings()
	click := mail.NewClickTrackingSetting()
	click.SetEnable(false)
	click.SetEnableText(false)
	tracking.SetClickTracking(click)
	m.SetTrackingSettings(tracking)
	return m
}
