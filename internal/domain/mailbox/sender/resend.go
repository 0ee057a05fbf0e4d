package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
)

// ErrNoAPIKey is returned when the Resend transport is built without a key.
var ErrNoAPIKey = errors.New("resend api key is empty")

// ResendSender implements Sender using the Resend API
type ResendSender struct {
	client *resend.Client
	logger *slog.Logger
}

// NewResendSender creates a new Resend sender
func NewResendSender(apiKey string, logger *slog.Logger) (*ResendSender, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return &ResendSender{client: resend.NewClient(apiKey), logger: logger}, nil
}

// Send submits the reply as a plain text email with attachments.
func (s *ResendSender) Send(ctx context.Context, reply mailbox.Reply) error {
	sent, err := s.client.Emails.SendWithContext(ctx, resendRequest(reply))
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	s.logger.Info("reply sent",
		slog.String("to", reply.To),
		slog.String("subject", reply.Subject),
		slog.String("resend_id", sent.Id),
		slog.Int("attachments", len(reply.Attachments)))
	return nil
}

func resendRequest(reply mailbox.Reply) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		From:    reply.From,
		To:      []string{reply.To},
		Subject: reply.Subject,
		Text:    reply.Body,
	}
	if reply.InReplyTo != "" {
		ref := "<" + reply.InReplyTo + ">"
		req.Headers = map[string]string{
			"In-Reply-To": ref,
			"References":  ref,
		}
	}
	for _, att := range reply.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Content:     att.Data,
			Filename:    att.Filename,
			ContentType: att.ContentType,
		})
	}
	return req
}
