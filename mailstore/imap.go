package mailstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/auditpipe/mail-audit/model"
)

// IMAPOptions configures the connection to a live mail store.
type IMAPOptions struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
}

// IMAPStore lists messages from IMAP mailboxes, one mailbox per section
// label. Each Messages call dials a fresh session so scans stay
// restartable.
type IMAPStore struct {
	opts   IMAPOptions
	logger *slog.Logger
}

func NewIMAPStore(opts IMAPOptions, logger *slog.Logger) (*IMAPStore, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("imap port must be between 1 and 65535")
	}
	return &IMAPStore{opts: opts, logger: logger}, nil
}

// Resolve returns the mailbox name backing the section. IMAP sections
// have no local artifact path.
func (s *IMAPStore) Resolve(section string) (string, error) {
	return section, nil
}

func (s *IMAPStore) Messages(ctx context.Context, section string) ([]model.RawMessage, error) {
	client, cleanup, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	selData, err := client.Select(section, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("%w: mailbox %s: %v", ErrSectionNotFound, section, err)
	}
	if selData.NumMessages == 0 {
		return nil, nil
	}

	var seqSet imapv2.SeqSet
	seqSet.AddRange(1, selData.NumMessages)

	bodySection := &imapv2.FetchItemBodySection{}
	fetched, err := client.Fetch(seqSet, &imapv2.FetchOptions{
		Envelope:    true,
		BodySection: []*imapv2.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", section, err)
	}

	messages := make([]model.RawMessage, 0, len(fetched))
	for idx, buf := range fetched {
		if err := ctx.Err(); err != nil {
			return messages, err
		}

		raw := buf.FindBodySection(bodySection)
		msg, err := parseMessage(bytes.NewReader(raw))
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping undecodable imap message", "section", section, "index", idx, "err", err)
			}
			continue
		}

		// The envelope is authoritative where parsing came up empty.
		if env := buf.Envelope; env != nil {
			if msg.Subject == "" {
				msg.Subject = env.Subject
			}
			if msg.SentAt.IsZero() {
				msg.SentAt = env.Date
			}
			if msg.Sender == "" && len(env.From) > 0 {
				msg.Sender = env.From[0].Addr()
			}
		}

		msg.Section = section
		msg.FolderPath = section
		if msg.ID == "" {
			msg.ID = fmt.Sprintf("%s#%d", section, idx)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (s *IMAPStore) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)
	if s.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "tls", s.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil && s.logger != nil {
				s.logger.Warn("imap logout failed", "err", err)
			}
		}
		_ = client.Close()
	}

	return client, cleanup, nil
}
