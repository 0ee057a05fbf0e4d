// Package client reads unseen payment-order mail over IMAP.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"github.com/FACorreiaa/upn-epc-bridge/internal/domain/mailbox"
)

// ErrLogin is returned when the server rejects the credentials.
var ErrLogin = errors.New("IMAP login failed")

// Mailbox is the subset of IMAP the worker needs
type Mailbox interface {
	// FetchUnseen returns unseen messages and marks them seen
	FetchUnseen(ctx context.Context) ([]mailbox.Message, error)

	// Delete flags a message as \Deleted
	Delete(ctx context.Context, uid uint32) error

	// Expunge removes flagged messages
	Expunge(ctx context.Context) error

	// Close logs out
	Close() error
}

// Config holds IMAP connection settings
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Mailbox  string
	Timeout  time.Duration
}

// IMAPMailbox implements Mailbox over an implicit-TLS IMAP connection
type IMAPMailbox struct {
	c      *imapclient.Client
	logger *slog.Logger
}

// Dial connects, logs in and selects the configured mailbox read-write.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*IMAPMailbox, error) {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	c, err := imapclient.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c.Timeout = timeout

	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("%w: %v", ErrLogin, err)
	}

	if _, err := c.Select(cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to select %s: %w", cfg.Mailbox, err)
	}

	logger.Debug("imap session opened",
		slog.String("addr", addr),
		slog.String("mailbox", cfg.Mailbox))

	return &IMAPMailbox{c: c, logger: logger}, nil
}

// FetchUnseen searches UNSEEN and fetches BODY[] of every hit. The fetch is
// not a peek, so the server marks the messages seen. Unparsable messages are
// logged and skipped.
func (m *IMAPMailbox) FetchUnseen(ctx context.Context) ([]mailbox.Message, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	fetched := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seqset, items, fetched)
	}()

	var out []mailbox.Message
	for raw := range fetched {
		body := raw.GetBody(section)
		if body == nil {
			continue
		}
		msg, err := ParseMessage(body)
		if err != nil {
			m.logger.Error("failed to parse message",
				slog.Any("uid", raw.Uid),
				slog.Any("error", err))
			continue
		}
		msg.UID = raw.Uid
		out = append(out, msg)
	}

	if err := <-done; err != nil {
		return out, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// Delete adds the \Deleted flag.
func (m *IMAPMailbox) Delete(_ context.Context, uid uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := m.c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to flag message %d: %w", uid, err)
	}
	return nil
}

// Expunge permanently removes flagged messages.
func (m *IMAPMailbox) Expunge(_ context.Context) error {
	if err := m.c.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// Close logs out and closes the connection.
func (m *IMAPMailbox) Close() error {
	return m.c.Logout()
}
