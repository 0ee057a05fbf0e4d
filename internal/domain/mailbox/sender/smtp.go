package sender

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
)

// SMTPConfig holds SMTP submission settings
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	// UseTLS upgrades the connection with STARTTLS before authenticating.
	UseTLS bool
	// TLSConfig overrides the STARTTLS client config. ServerName defaults to Host.
	TLSConfig *tls.Config
	// DialTimeout bounds the TCP connect when ctx has no deadline.
	DialTimeout time.Duration
}

const defaultDialTimeout = 30 * time.Second

// SMTPSender implements Sender over SMTP submission with PLAIN auth
type SMTPSender struct {
	cfg    SMTPConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg SMTPConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{cfg: cfg, logger: logger, now: time.Now}
}

// Send opens a connection per reply, authenticates and submits the message.
func (s *SMTPSender) Send(ctx context.Context, reply mailbox.Reply) error {
	body, err := Compose(reply, s.now())
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	c, err := s.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if deadline, ok := ctx.Deadline(); ok {
		c.CommandTimeout = time.Until(deadline)
		c.SubmissionTimeout = time.Until(deadline)
	}

	if err := c.Auth(sasl.NewPlainClient("", s.cfg.User, s.cfg.Password)); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	if err := c.SendMail(reply.From, []string{reply.To}, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", slog.Any("error", err))
	}

	s.logger.Info("reply sent",
		slog.String("to", reply.To),
		slog.String("subject", reply.Subject),
		slog.Int("attachments", len(reply.Attachments)))
	return nil
}

// dial connects to addr and, with UseTLS, upgrades the session with STARTTLS
// before anything else is sent.
func (s *SMTPSender) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	timeout := s.cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	conn, err := (&net.Dialer{Timeout: timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if !s.cfg.UseTLS {
		return smtp.NewClient(conn), nil
	}

	c, err := smtp.NewClientStartTLS(conn, s.tlsConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to start TLS: %w", err)
	}
	return c, nil
}

func (s *SMTPSender) tlsConfig() *tls.Config {
	cfg := &tls.Config{}
	if s.cfg.TLSConfig != nil {
		cfg = s.cfg.TLSConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = s.cfg.Host
	}
	return cfg
}
