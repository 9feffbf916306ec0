package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessage(t *testing.T) {
	summary := Summary{
		RecipientID: "fraud-team",
		Address:     "fraud@example.com",
		Files:       []string{"Internal Fraud/001.eml", "Internal Fraud/002.eml"},
		Destination: "/srv/dist/fraud-team",
		DeliveredAt: time.Date(2023, 8, 10, 14, 30, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	require.NoError(t, buildMessage(&buf, "audit@example.com", "Audit report delivery", summary))

	raw := buf.String()
	assert.Contains(t, raw, "From: <audit@example.com>")
	assert.Contains(t, raw, "To: <fraud@example.com>")
	assert.Contains(t, raw, "Subject: Audit report delivery")
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "fraud-team")
}

func TestNewSMTPNotifierValidation(t *testing.T) {
	_, err := NewSMTPNotifier(SMTPOptions{Port: 587, From: "a@b.c"})
	assert.Error(t, err, "host is required")

	_, err = NewSMTPNotifier(SMTPOptions{Host: "smtp.example.com", Port: 0, From: "a@b.c"})
	assert.Error(t, err, "port is required")

	_, err = NewSMTPNotifier(SMTPOptions{Host: "smtp.example.com", Port: 587})
	assert.Error(t, err, "sender is required")

	n, err := NewSMTPNotifier(SMTPOptions{Host: "smtp.example.com", Port: 587, From: "a@b.c"})
	require.NoError(t, err)
	assert.NotNil(t, n)
}
