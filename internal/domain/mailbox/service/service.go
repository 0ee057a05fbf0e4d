// Package service polls the mailbox, converts PDF attachments and replies
// with the converted documents.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox/client"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox/sender"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/register"
	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/repository"
	paymentservice "github.com/FACorreiaa/upn-epc-bridge/internal/domain/payment/service"
	"github.com/FACorreiaa/upn-epc-bridge/pkg/storage"
)

const (
	noPaymentsBody = "No UNP QR codes found in the attached PDF(s)."
	bodyHeader     = "Payment register(s):\n\n"
	noSubject      = "(no subject)"
)

// Message outcomes reported to the observer
const (
	OutcomeReplied   = "replied"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Dialer opens a mailbox session for one cycle.
type Dialer func(ctx context.Context) (client.Mailbox, error)

// Converter converts one PDF
type Converter interface {
	Convert(ctx context.Context, in paymentservice.Input) (*paymentservice.Result, error)
}

// ReplyLog remembers which messages were answered
type ReplyLog interface {
	HasReplied(ctx context.Context, messageID string) (bool, error)
	MarkReplied(ctx context.Context, messageID string) error
}

// Observer receives cycle and message outcomes.
type Observer interface {
	ObserveCycle(err error, elapsed time.Duration)
	IncMessage(outcome string)
}

// Service runs mailbox cycles
type Service struct {
	dial       Dialer
	sender     sender.Sender
	converter  Converter
	from       string
	attachXLSX bool
	replies    ReplyLog
	observer   Observer
	logger     *slog.Logger
}

// NewService creates a mailbox service. from is the reply sender address.
func NewService(dial Dialer, s sender.Sender, conv Converter, from string, logger *slog.Logger) *Service {
	return &Service{
		dial:      dial,
		sender:    s,
		converter: conv,
		from:      from,
		logger:    logger,
	}
}

// WithXLSX attaches the spreadsheet register of every converted document.
func (s *Service) WithXLSX(enabled bool) *Service {
	s.attachXLSX = enabled
	return s
}

// WithReplyLog prevents a second reply to a message that was already answered.
func (s *Service) WithReplyLog(r ReplyLog) *Service {
	s.replies = r
	return s
}

// WithObserver reports cycle and message outcomes.
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// RunOnce processes every unseen message once. Each message is handled in
// isolation; flagged messages are expunged at the end of the cycle.
func (s *Service) RunOnce(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveCycle(err, time.Since(start))
		}
	}()

	mb, err := s.dial(ctx)
	if err != nil {
		if errors.Is(err, client.ErrLogin) {
			s.logger.Error("IMAP login failed", slog.Any("error", err))
		}
		return fmt.Errorf("failed to open mailbox: %w", err)
	}
	defer func() {
		if err := mb.Expunge(ctx); err != nil {
			s.logger.Debug("expunge failed", slog.Any("error", err))
		}
		if err := mb.Close(); err != nil {
			s.logger.Debug("logout failed", slog.Any("error", err))
		}
	}()

	messages, err := mb.FetchUnseen(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}

	withPDF := make([]mailbox.Message, 0, len(messages))
	for _, m := range messages {
		if len(m.Attachments) == 0 {
			s.observe(OutcomeSkipped)
			continue
		}
		withPDF = append(withPDF, m)
	}
	if len(withPDF) == 0 {
		return nil
	}
	s.logger.Info("found messages with PDF attachments", slog.Int("count", len(withPDF)))

	for _, m := range withPDF {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.handle(ctx, mb, m)
	}
	return nil
}

func (s *Service) handle(ctx context.Context, mb client.Mailbox, m mailbox.Message) {
	subject := m.Subject
	if subject == "" {
		subject = noSubject
	}
	logger := s.logger.With(
		slog.String("from", m.From),
		slog.String("subject", subject),
		slog.Any("uid", m.UID),
	)
	logger.Info("processing message", slog.Int("pdfs", len(m.Attachments)))

	if s.alreadyReplied(ctx, logger, m) {
		s.delete(ctx, logger, mb, m)
		s.observe(OutcomeDuplicate)
		return
	}

	reply := s.buildReply(ctx, logger, m)
	if err := s.sender.Send(ctx, reply); err != nil {
		logger.Error("failed to send reply", slog.Any("error", err))
		s.observe(OutcomeFailed)
		return
	}

	if s.replies != nil && m.MessageID != "" {
		if err := s.replies.MarkReplied(ctx, m.MessageID); err != nil {
			logger.Warn("failed to record reply", slog.Any("error", err))
		}
	}
	s.delete(ctx, logger, mb, m)
	s.observe(OutcomeReplied)
}

// buildReply converts every attachment and assembles the reply. A failed
// conversion is logged; the original is still returned to the sender.
func (s *Service) buildReply(ctx context.Context, logger *slog.Logger, m mailbox.Message) mailbox.Reply {
	var (
		attachments []mailbox.Attachment
		blocks      []string
	)

	for _, att := range m.Attachments {
		attachments = append(attachments, withContentType(att, storage.ContentTypePDF))

		res, err := s.converter.Convert(ctx, paymentservice.Input{
			Name:      att.Filename,
			Data:      att.Data,
			Origin:    repository.OriginMail,
			MessageID: m.MessageID,
		})
		if err != nil {
			logger.Warn("conversion failed",
				slog.String("attachment", att.Filename),
				slog.Any("error", err))
			continue
		}

		logger.Info("attachment converted",
			slog.String("attachment", att.Filename),
			slog.Int("payments", len(res.Records)),
			slog.String("total", res.Total().Fixed()))

		attachments = append(attachments, mailbox.Attachment{
			Filename:    paymentservice.OutputName(att.Filename),
			ContentType: storage.ContentTypePDF,
			Data:        res.Document,
		})
		if s.attachXLSX {
			if data, err := register.XLSX(res.Records); err != nil {
				logger.Warn("failed to build spreadsheet register", slog.Any("error", err))
			} else {
				attachments = append(attachments, mailbox.Attachment{
					Filename:    RegisterName(att.Filename),
					ContentType: storage.ContentTypeXLSX,
					Data:        data,
				})
			}
		}
		blocks = append(blocks, fmt.Sprintf("--- %s ---\n%s", att.Filename, register.Text(res.Records)))
	}

	return mailbox.Reply{
		From:        s.from,
		To:          m.From,
		Subject:     ReplySubject(m.Subject),
		Body:        ReplyBody(blocks),
		InReplyTo:   m.MessageID,
		Attachments: attachments,
	}
}

func (s *Service) alreadyReplied(ctx context.Context, logger *slog.Logger, m mailbox.Message) bool {
	if s.replies == nil || m.MessageID == "" {
		return false
	}
	replied, err := s.replies.HasReplied(ctx, m.MessageID)
	if err != nil {
		logger.Warn("failed to check reply log", slog.Any("error", err))
		return false
	}
	if replied {
		logger.Info("message already answered")
	}
	return replied
}

func (s *Service) delete(ctx context.Context, logger *slog.Logger, mb client.Mailbox, m mailbox.Message) {
	if err := mb.Delete(ctx, m.UID); err != nil {
		logger.Error("IMAP delete failed", slog.Any("error", err))
		return
	}
	logger.Info("message deleted from mailbox")
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.IncMessage(outcome)
	}
}

// ReplySubject prefixes the original subject with "RE: ".
func ReplySubject(subject string) string {
	if subject == "" {
		subject = noSubject
	}
	return "RE: " + subject
}

// ReplyBody joins the per-document register blocks.
func ReplyBody(blocks []string) string {
	if len(blocks) == 0 {
		return noPaymentsBody
	}
	return bodyHeader + strings.Join(blocks, "\n\n")
}

// RegisterName derives the spreadsheet name: "<stem>_register.xlsx".
func RegisterName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_register" + register.FormatXLSX.Extension()
}

func withContentType(a mailbox.Attachment, fallback string) mailbox.Attachment {
	if a.ContentType == "" {
		a.ContentType = fallback
	}
	return a
}
