// ABOUTME: Mail pack sends email with optional attachments on the user's behalf.
// ABOUTME: Attachments arrive base64-encoded and are decoded before delivery.

package builtins

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/adjunct-gateway/internal/mailer"
	"github.com/2389/adjunct-gateway/internal/orchestrator"
	"github.com/2389/adjunct-gateway/internal/packs"
)

// MailPack creates the mail pack. from is the sender address used for every
// message; an empty from defers to the mailer's configured default.
func MailPack(m mailer.Mailer, from string) *packs.BuiltinPack {
	h := &mailHandlers{mailer: m, from: from}
	return &packs.BuiltinPack{
		ID: "builtin:mail",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:        "send_email_with_attachments",
					Description: "Send an email immediately to one or more recipients, with optional CC, BCC, and attachments.",
					InputSchema: packs.GenerateSchema[sendEmailInput](),
				},
				Handler: h.Send,
			},
		},
	}
}

type mailHandlers struct {
	mailer mailer.Mailer
	from   string
}

type emailAttachment struct {
	Filename string `json:"filename" jsonschema_description:"Name of the file as it should appear to the recipient."`
	Content  string `json:"content" jsonschema_description:"Base64-encoded file content."`
	MIMEType string `json:"mime_type" jsonschema_description:"MIME type of the file (e.g., application/pdf, image/png)."`
}

type sendEmailInput struct {
	To          []string          `json:"to" jsonschema_description:"List of primary recipient email addresses."`
	Cc          []string          `json:"cc,omitempty" jsonschema_description:"Optional list of CC recipients."`
	Bcc         []string          `json:"bcc,omitempty" jsonschema_description:"Optional list of BCC recipients."`
	Subject     string            `json:"subject" jsonschema_description:"Subject line of the email."`
	Body        string            `json:"body" jsonschema_description:"Email body content in plain text, markdown, or HTML."`
	Attachments []emailAttachment `json:"attachments,omitempty" jsonschema_description:"Optional list of files to attach."`
}

type sendEmailOutput struct {
	Success    bool     `json:"success"`
	MessageID  string   `json:"message_id"`
	Recipients []string `json:"recipients"`
}

func (h *mailHandlers) Send(ctx context.Context, _ orchestrator.Session, input json.RawMessage) (json.RawMessage, error) {
	var in sendEmailInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	email := &mailer.Email{
		From:    h.from,
		To:      trimAll(in.To),
		Cc:      trimAll(in.Cc),
		Bcc:     trimAll(in.Bcc),
		Subject: strings.TrimSpace(in.Subject),
		Body:    in.Body,
	}
	if len(email.Recipients()) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	if email.Subject == "" {
		return nil, errors.New("subject is required")
	}

	for _, att := range in.Attachments {
		if att.Filename == "" {
			return nil, errors.New("attachment filename is required")
		}
		content, err := base64.StdEncoding.DecodeString(att.Content)
		if err != nil {
			return nil, fmt.Errorf("attachment %s: invalid base64 content: %w", att.Filename, err)
		}
		email.Attachments = append(email.Attachments, mailer.Attachment{
			Filename: att.Filename,
			MIMEType: att.MIMEType,
			Content:  content,
		})
	}

	id, err := h.mailer.Send(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("sending email: %w", err)
	}

	return json.Marshal(sendEmailOutput{
		Success:    true,
		MessageID:  id,
		Recipients: email.Recipients(),
	})
}

// trimAll drops blank entries and surrounding whitespace.
func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
