package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-message"
	// Register decoders for legacy charsets in headers and text parts.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
)

// ParseMessage reads an RFC 5322 message and keeps the PDF attachments.
// Parts without a filename or without content are skipped.
func ParseMessage(r io.Reader) (mailbox.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return mailbox.Message{}, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	var msg mailbox.Message
	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			return msg, fmt.Errorf("failed to read message part: %w", err)
		}

		h, ok := part.Header.(*mail.AttachmentHeader)
		if !ok {
			continue
		}
		filename, err := h.Filename()
		if err != nil || filename == "" {
			continue
		}
		contentType, _, _ := h.ContentType()

		data, err := io.ReadAll(part.Body)
		if err != nil {
			return msg, fmt.Errorf("failed to read attachment %q: %w", filename, err)
		}

		att := mailbox.Attachment{Filename: filename, ContentType: contentType, Data: data}
		if att.IsPDF() {
			msg.Attachments = append(msg.Attachments, att)
		}
	}

	return msg, nil
}
