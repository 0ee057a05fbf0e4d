// Package sender delivers mailbox replies over SMTP or the Resend API.
package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
)

// Sender delivers one reply
type Sender interface {
	Send(ctx context.Context, reply mailbox.Reply) error
}

const defaultAttachmentType = "application/octet-stream"

// Compose renders a reply as a multipart/mixed MIME message: a plain text
// body followed by the attachments in order.
func Compose(reply mailbox.Reply, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: reply.From}})
	h.SetAddressList("To", []*mail.Address{{Address: reply.To}})
	h.SetSubject(reply.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	if reply.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{reply.InReplyTo})
		h.SetMsgIDList("References", []string{reply.InReplyTo})
	}

	var buf bytes.Buffer
	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	if err := writeText(w, reply.Body); err != nil {
		return nil, err
	}
	for _, att := range reply.Attachments {
		if err := writeAttachment(w, att); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeText(w *mail.Writer, body string) error {
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")

	pw, err := w.CreateSingleInline(th)
	if err != nil {
		return fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("failed to write text part: %w", err)
	}
	return pw.Close()
}

func writeAttachment(w *mail.Writer, att mailbox.Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = defaultAttachmentType
	}

	var ah mail.AttachmentHeader
	ah.SetContentType(contentType, nil)
	ah.SetFilename(att.Filename)
	ah.Set("Content-Transfer-Encoding", "base64")

	aw, err := w.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("failed to create attachment %q: %w", att.Filename, err)
	}
	if _, err := aw.Write(att.Data); err != nil {
		return fmt.Errorf("failed to write attachment %q: %w", att.Filename, err)
	}
	return aw.Close()
}
