package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// SMTPOptions configures the notification transport.
type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	UseTLS   bool
}

// SMTPNotifier sends one summary mail per recipient over SMTP.
type SMTPNotifier struct {
	opts SMTPOptions
}

func NewSMTPNotifier(opts SMTPOptions) (*SMTPNotifier, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp host is empty")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("smtp port must be between 1 and 65535")
	}
	if opts.From == "" {
		return nil, fmt.Errorf("smtp sender address is empty")
	}
	if opts.Subject == "" {
		opts.Subject = "Audit report delivery"
	}
	return &SMTPNotifier{opts: opts}, nil
}

func (n *SMTPNotifier) Notify(ctx context.Context, summary Summary) error {
	if summary.Address == "" {
		return fmt.Errorf("recipient %s has no contact address", summary.RecipientID)
	}

	var buf bytes.Buffer
	if err := buildMessage(&buf, n.opts.From, n.opts.Subject, summary); err != nil {
		return fmt.Errorf("build notification: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	address := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	var auth sasl.Client
	if n.opts.Username != "" {
		auth = sasl.NewPlainClient("", n.opts.Username, n.opts.Password)
	}

	var err error
	if n.opts.UseTLS {
		err = smtp.SendMailTLS(address, auth, n.opts.From, []string{summary.Address}, &buf)
	} else {
		err = smtp.SendMail(address, auth, n.opts.From, []string{summary.Address}, &buf)
	}
	if err != nil {
		return fmt.Errorf("send notification to %s: %w", summary.Address, err)
	}
	return nil
}

// buildMessage writes a multipart/alternative notification with a
// plain-text part and an HTML part.
func buildMessage(w io.Writer, from, subject string, summary Summary) error {
	fromAddr := &mail.Address{Address: from}
	toAddr := &mail.Address{Address: summary.Address}

	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{fromAddr})
	header.SetAddressList("To", []*mail.Address{toAddr})
	header.SetSubject(subject)

	mw, err := mail.CreateWriter(w, header)
	if err != nil {
		return err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return err
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	textPart, err := iw.CreatePart(textHeader)
	if err != nil {
		return err
	}
	io.WriteString(textPart, textBody(summary))
	textPart.Close()

	var htmlHeader mail.InlineHeader
	htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	htmlPart, err := iw.CreatePart(htmlHeader)
	if err != nil {
		return err
	}
	io.WriteString(htmlPart, htmlBody(summary))
	htmlPart.Close()

	iw.Close()
	return mw.Close()
}

func textBody(summary Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Audit report artifacts delivered for %s.\n\n", summary.RecipientID)
	if summary.Destination != "" {
		fmt.Fprintf(&sb, "Destination: %s\n", summary.Destination)
	}
	fmt.Fprintf(&sb, "Delivered at: %s\n\nFiles:\n", summary.DeliveredAt.Format("02-01-2006 15:04:05"))
	for _, file := range summary.Files {
		fmt.Fprintf(&sb, "  - %s\n", file)
	}
	return sb.String()
}

func htmlBody(summary Summary) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><body>")
	fmt.Fprintf(&sb, "<p><b>Audit report delivery</b></p>")
	fmt.Fprintf(&sb, "<p>Artifacts delivered for <b>%s</b> at %s.</p>",
		html.EscapeString(summary.RecipientID),
		summary.DeliveredAt.Format("02-01-2006 15:04:05"))
	if summary.Destination != "" {
		fmt.Fprintf(&sb, "<p>Destination: %s</p>", html.EscapeString(summary.Destination))
	}
	sb.WriteString("<ul>")
	for _, file := range summary.Files {
		fmt.Fprintf(&sb, "<li>%s</li>", html.EscapeString(file))
	}
	sb.WriteString("</ul><p>Best regards,<br>Audit Pipeline</p></body></html>")
	return sb.String()
}
