package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/noah-isme/lms-api/pkg/config"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Message is a single outbound email.
type Message struct {
	ToName    string
	ToAddress string
	Subject   string
	Text      string
	HTML      string
}

// Validate ensures the message can be delivered.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ToAddress) == "" {
		return fmt.Errorf("recipient address required")
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("message body required")
	}
	return nil
}

// Mailer delivers messages synchronously.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New selects a mailer implementation from configuration.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider == config.MailProviderSendgrid && cfg.SendgridAPIKey != "" {
		return NewSendgridMailer(cfg)
	}
	if cfg.Provider == config.MailProviderSendgrid {
		logger.Warn("sendgrid selected without api key, falling back to log mailer")
	}
	return NewLogMailer(cfg.SubjectPrefix, logger)
}

// SendgridMailer delivers through the SendGrid v3 REST API.
type SendgridMailer struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	api        func(rest.Request) (*rest.Response, error)
}

// NewSendgridMailer builds a SendGrid backed mailer.
func NewSendgridMailer(cfg config.MailConfig) *SendgridMailer {
	return &SendgridMailer{
		key:        cfg.SendgridAPIKey,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjPrefix: cfg.SubjectPrefix,
		api:        sendgrid.API,
	}
}

// Send implements Mailer.
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := m.api(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send mail: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (m *SendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	out := sgmail.NewV3Mail()
	out.SetFrom(m.from)
	out.AddPersonalizations(p)
	if msg.Text != "" {
		out.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		out.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return out
}

// LogMailer writes messages to the structured log instead of sending them.
type LogMailer struct {
	subjPrefix string
	logger     *zap.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(subjectPrefix string, logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{subjPrefix: subjectPrefix, logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.logger.Info("mail sent",
		zap.String("to", msg.ToAddress),
		zap.String("subject", m.subjPrefix+msg.Subject),
		zap.Int("text_len", len(msg.Text)),
	)
	return nil
}
