// Package mailbox holds the message types shared by the IMAP client, the
// reply senders and the polling service.
package mailbox

import (
	"path/filepath"
	"strings"
)

// Attachment is one file carried by a message
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// IsPDF reports a named, non-empty attachment with a .pdf extension.
func (a Attachment) IsPDF() bool {
	return a.Filename != "" && len(a.Data) > 0 &&
		strings.EqualFold(filepath.Ext(a.Filename), ".pdf")
}

// Message is an incoming mail with its PDF attachments
type Message struct {
	UID         uint32
	MessageID   string
	From        string
	Subject     string
	Attachments []Attachment
}

// Reply is an outgoing mail
type Reply struct {
	From        string
	To          string
	Subject     string
	Body        string
	InReplyTo   string
	Attachments []Attachment
}
