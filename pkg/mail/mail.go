package mail

import (
	"context"
	"fmt"
	"sync"

	"contaminer/pkg/config"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Message is one outgoing e-mail.
type Message struct {
	Subject string
	Text    string
	HTML    string
	To      []string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var Module = fx.Module("mail",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns an SMTP sender, or a logging no-op sender when
// MAIL.HOST is empty.
func NewFromConfig(cfg *config.Config) (Sender, error) {
	if cfg.Mail.Host == "" {
		zap.L().Warn("[Mail] MAIL.HOST not set, notifications are only logged")
		return Nop{}, nil
	}
	return NewSMTPSender(cfg)
}

type SMTPSender struct {
	client *gomail.Client
	from   string
}

func NewSMTPSender(cfg *config.Config) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Mail.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Mail.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Mail.Username),
			gomail.WithPassword(cfg.Mail.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Mail.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPSender{client: client, from: cfg.Mail.From}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("invalid sender %q: %w", s.from, err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("invalid recipient %v: %w", msg.To, err)
	}
	m.Subject(msg.Subject)

	switch {
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
		if msg.Text != "" {
			m.AddAlternativeString(gomail.TypeTextPlain, msg.Text)
		}
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	zap.L().Info("[Mail] sent", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// Nop logs instead of sending.
type Nop struct{}

func (Nop) Send(_ context.Context, msg Message) error {
	zap.L().Info("[Mail] not sent (no smtp host)", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// Recorder keeps sent messages in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
