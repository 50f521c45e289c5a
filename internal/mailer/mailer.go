// ABOUTME: Builds MIME emails with attachments and delivers them over SMTP.
// ABOUTME: Markdown bodies are rendered to HTML with goldmark when enabled.

package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
	"github.com/yuin/goldmark"
)

// ErrNoRecipients indicates an email without any To, Cc, or Bcc address.
var ErrNoRecipients = errors.New("at least one recipient is required")

// Attachment is a file carried by an email.
type Attachment struct {
	Filename string
	MIMEType string
	Content  []byte
}

// Email is a message ready to be built and sent.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Recipients returns every envelope recipient, Bcc included.
func (e *Email) Recipients() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To...)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}

// Mailer delivers emails and returns the Message-ID it assigned.
type Mailer interface {
	Send(ctx context.Context, email *Email) (string, error)
}

// Config configures the SMTP relay.
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	RenderMarkdown bool
	// DisableTLS skips STARTTLS even when the server offers it.
	DisableTLS bool
}

// Ensure SMTPMailer implements Mailer.
var _ Mailer = (*SMTPMailer)(nil)

// SMTPMailer sends mail through a single SMTP relay.
type SMTPMailer struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg Config, logger *slog.Logger) *SMTPMailer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.With("component", "mailer"),
		now:    time.Now,
	}
}

// Send builds and delivers email. The connection honors ctx's deadline.
func (m *SMTPMailer) Send(ctx context.Context, email *Email) (string, error) {
	if email.From == "" {
		email.From = m.cfg.From
	}
	msg, id, err := m.newMsg(email)
	if err != nil {
		return "", err
	}

	client, err := gomail.NewClient(m.cfg.Host, m.clientOptions()...)
	if err != nil {
		return "", fmt.Errorf("configuring smtp client: %w", err)
	}
	if err := client.DialWithContext(ctx); err != nil {
		return "", fmt.Errorf("connecting to smtp relay: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Send(msg); err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}

	m.logger.Info("email sent",
		"message_id", id,
		"recipients", len(email.Recipients()),
		"attachments", len(email.Attachments),
	)
	return id, nil
}

func (m *SMTPMailer) clientOptions() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(m.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if m.cfg.DisableTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.cfg.Username),
			gomail.WithPassword(m.cfg.Password),
		)
	}
	return opts
}

// Build renders email as an RFC 5322 message and returns its Message-ID.
// Bcc recipients never appear in the headers.
func (m *SMTPMailer) Build(email *Email) (string, []byte, error) {
	msg, id, err := m.newMsg(email)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return "", nil, fmt.Errorf("writing message: %w", err)
	}
	return id, buf.Bytes(), nil
}

func (m *SMTPMailer) newMsg(email *Email) (*gomail.Msg, string, error) {
	if len(email.Recipients()) == 0 {
		return nil, "", ErrNoRecipients
	}

	msg := gomail.NewMsg()
	if err := msg.From(email.From); err != nil {
		return nil, "", fmt.Errorf("invalid sender %q: %w", email.From, err)
	}
	for _, list := range []struct {
		addrs []string
		set   func(...string) error
	}{
		{email.To, msg.To},
		{email.Cc, msg.Cc},
		{email.Bcc, msg.Bcc},
	} {
		if len(list.addrs) == 0 {
			continue
		}
		if err := list.set(list.addrs...); err != nil {
			return nil, "", fmt.Errorf("invalid address in %v: %w", list.addrs, err)
		}
	}

	htmlBody, err := m.renderHTML(email.Body)
	if err != nil {
		return nil, "", err
	}

	idValue := uuid.New().String() + "@" + senderDomain(email.From)
	msg.SetMessageIDWithValue(idValue)
	msg.SetDateWithValue(m.now())
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, email.Body)
	msg.AddAlternativeString(gomail.TypeTextHTML, htmlBody)

	for _, att := range email.Attachments {
		contentType := att.MIMEType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		err := msg.AttachReader(att.Filename, bytes.NewReader(att.Content),
			gomail.WithFileContentType(gomail.ContentType(contentType)))
		if err != nil {
			return nil, "", fmt.Errorf("attaching %s: %w", att.Filename, err)
		}
	}

	return msg, "<" + idValue + ">", nil
}

// renderHTML returns the HTML form of body. Bodies that already look like
// HTML are used unchanged.
func (m *SMTPMailer) renderHTML(body string) (string, error) {
	if looksLikeHTML(body) || !m.cfg.RenderMarkdown {
		return body, nil
	}
	var out bytes.Buffer
	if err := goldmark.Convert([]byte(body), &out); err != nil {
		return "", fmt.Errorf("rendering markdown body: %w", err)
	}
	return out.String(), nil
}

func looksLikeHTML(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">")
}

func senderDomain(from string) string {
	from = strings.TrimSuffix(strings.TrimSpace(from), ">")
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		return from[at+1:]
	}
	return "localhost"
}
