// Package mailstore scans a mail store for fully materialized messages.
// Two stores are provided: a filesystem store (directories of .eml files
// or .mbox files per section) and an IMAP store (one mailbox per
// section). A fresh scan re-walks from scratch; there is no resumable
// cursor.
package mailstore

import (
	"context"
	"errors"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/auditpipe/mail-audit/model"
)

// ErrSectionNotFound reports a configured section label that does not
// resolve in the store. The caller skips the section and continues.
var ErrSectionNotFound = errors.New("section not found")

// Store lists the messages of one mail-store section.
type Store interface {
	// Messages returns every message of the section in the store's
	// native ordering, each fully materialized. The context is checked
	// between messages.
	Messages(ctx context.Context, section string) ([]model.RawMessage, error)

	// Resolve maps a section label to its backing location.
	Resolve(section string) (string, error)
}

// parseMessage decodes one RFC 5322 message into a RawMessage. Body is
// the first inline text part; attachment parts contribute name refs only.
func parseMessage(r io.Reader) (model.RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return model.RawMessage{}, err
	}

	var msg model.RawMessage
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = from[0].Address
	}
	if to, err := mr.Header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.Recipients = append(msg.Recipients, addr.Address)
		}
	}
	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.SentAt = date
	}
	if id, err := mr.Header.MessageID(); err == nil {
		msg.ID = strings.Trim(id, " <>")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Keep what decoded so far; a broken part must not lose
			// the whole message.
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			if msg.Body != "" {
				continue
			}
			contentType, _, _ := header.ContentType()
			if contentType == "" || strings.HasPrefix(contentType, "text/") {
				body, err := io.ReadAll(part.Body)
				if err == nil {
					msg.Body = string(body)
				}
			}
		case *mail.AttachmentHeader:
			name, _ := header.Filename()
			msg.Attachments = append(msg.Attachments, model.AttachmentRef{Name: name})
		}
	}

	return msg, nil
}
