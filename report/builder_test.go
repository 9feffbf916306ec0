package report

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/mailstore"
	"github.com/auditpipe/mail-audit/model"
)

// fakeStore serves canned messages per section label.
type fakeStore struct {
	sections map[string][]model.RawMessage
	calls    int
}

func (f *fakeStore) Messages(ctx context.Context, section string) ([]model.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.calls++
	msgs, ok := f.sections[section]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mailstore.ErrSectionNotFound, section)
	}
	return msgs, nil
}

func (f *fakeStore) Resolve(section string) (string, error) {
	if _, ok := f.sections[section]; !ok {
		return "", fmt.Errorf("%w: %s", mailstore.ErrSectionNotFound, section)
	}
	return filepath.Join("/mail", section), nil
}

func testConfig() config.Config {
	return config.Config{
		Sections: []string{"Internal", "Others"},
		Rules: []config.Rule{
			{ID: "wire", Field: config.FieldSubject, Pattern: "wire transfer", Action: "flagged"},
		},
		Recipients: []config.Recipient{
			{ID: "fraud-team", Address: "fraud@example.com", Sections: []string{"Internal"}},
		},
	}
}

func internalMessages(n int) []model.RawMessage {
	msgs := make([]model.RawMessage, 0, n)
	for i := 0; i < n; i++ {
		subject := "Status update"
		if i%3 == 0 {
			subject = "Wire Transfer Request"
		}
		msgs = append(msgs, model.RawMessage{
			ID:      fmt.Sprintf("msg-%03d", i),
			Section: "Internal",
			Sender:  "alice@internal.example",
			Subject: subject,
			SentAt:  time.Date(2023, 8, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			BodyRef: fmt.Sprintf("/mail/Internal/%03d.eml", i),
		})
	}
	return msgs
}

func TestExtractEmptySectionIsValid(t *testing.T) {
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(90),
		"Others":   nil,
	}}

	b, err := NewBuilder(testConfig(), store, Options{})
	require.NoError(t, err)

	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err)
	require.Len(t, rep.Sections, 2)

	others, ok := rep.Section("Others")
	require.True(t, ok)
	assert.Empty(t, others.Records, "empty section is an empty record list, not an error")
	assert.Equal(t, 0, others.Scanned)

	internal, ok := rep.Section("Internal")
	require.True(t, ok)
	assert.Equal(t, 90, internal.Scanned)
	assert.Equal(t, 30, len(internal.Records))
	assert.Empty(t, rep.Warnings)
}

func TestExtractSectionNotFoundSkips(t *testing.T) {
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(3),
	}}

	b, err := NewBuilder(testConfig(), store, Options{})
	require.NoError(t, err)

	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err, "a missing section must not fail the whole scan")
	require.Len(t, rep.Sections, 2)
	require.Len(t, rep.Warnings, 1)
	assert.Equal(t, model.WarnSectionNotFound, rep.Warnings[0].Kind)
	assert.Equal(t, "Others", rep.Warnings[0].Subject)
}

func TestExtractStampsReportMetadata(t *testing.T) {
	cfg := testConfig()
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(1), "Others": nil,
	}}

	b, err := NewBuilder(cfg, store, Options{})
	require.NoError(t, err)

	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.False(t, rep.GeneratedAt.IsZero())
	assert.Equal(t, cfg.Fingerprint(), rep.ConfigFingerprint)
	assert.Equal(t, "/mail", rep.MailRoot)
}

func TestExtractRecordsArtifacts(t *testing.T) {
	msgs := internalMessages(6)
	// Two records sharing one backing file must yield a single artifact.
	msgs[3].BodyRef = msgs[0].BodyRef
	msgs[3].Subject = "Wire transfer follow-up"

	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": msgs, "Others": nil,
	}}

	b, err := NewBuilder(testConfig(), store, Options{})
	require.NoError(t, err)

	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err)

	internal, _ := rep.Section("Internal")
	require.Len(t, internal.Records, 2)
	assert.Equal(t, []string{"/mail/Internal/000.eml"}, internal.Artifacts)
}

func TestExtractDateWindow(t *testing.T) {
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(30), "Others": nil,
	}}

	b, err := NewBuilder(testConfig(), store, Options{
		Since: time.Date(2023, 8, 1, 9, 10, 0, 0, time.UTC),
		Until: time.Date(2023, 8, 1, 9, 20, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err)

	internal, _ := rep.Section("Internal")
	// Matching subjects land on minute offsets 0,3,...,27; the window
	// keeps offsets 12, 15 and 18.
	assert.Len(t, internal.Records, 3)
}

func TestExtractCancelledReturnsPartial(t *testing.T) {
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(2), "Others": nil,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, err := NewBuilder(testConfig(), store, Options{})
	require.NoError(t, err)

	rep, err := b.Extract(ctx, "/mail")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep, "partial report must be returned on cancellation")
	assert.Empty(t, rep.Sections)
}

func TestExtractProgressCallback(t *testing.T) {
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(4), "Others": nil,
	}}

	type tick struct{ si, st, mi, mt int }
	var ticks []tick
	b, err := NewBuilder(testConfig(), store, Options{
		Progress: func(si, st, mi, mt int) { ticks = append(ticks, tick{si, st, mi, mt}) },
	})
	require.NoError(t, err)

	_, err = b.Extract(context.Background(), "/mail")
	require.NoError(t, err)

	require.Len(t, ticks, 4)
	assert.Equal(t, tick{0, 2, 1, 4}, ticks[0])
	assert.Equal(t, tick{0, 2, 4, 4}, ticks[3])
}

func TestExtractParallelSectionsKeepOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Sections = []string{"A", "B", "C", "D"}
	sections := make(map[string][]model.RawMessage)
	for _, label := range cfg.Sections {
		sections[label] = []model.RawMessage{{
			ID: label + "-1", Section: label, Subject: "Wire transfer",
		}}
	}
	store := &fakeStore{sections: sections}

	b, err := NewBuilder(cfg, store, Options{Workers: 4})
	require.NoError(t, err)

	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err)

	var labels []string
	for _, s := range rep.Sections {
		labels = append(labels, s.Label)
	}
	assert.Equal(t, cfg.Sections, labels, "sections merge in configured order regardless of completion order")
}

func TestArtifactRoundTrip(t *testing.T) {
	store := &fakeStore{sections: map[string][]model.RawMessage{
		"Internal": internalMessages(9), "Others": nil,
	}}
	b, err := NewBuilder(testConfig(), store, Options{})
	require.NoError(t, err)
	rep, err := b.Extract(context.Background(), "/mail")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteArtifact(path, rep))

	loaded, err := ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, loaded.RunID)
	assert.Equal(t, rep.ConfigFingerprint, loaded.ConfigFingerprint)
	require.Len(t, loaded.Sections, len(rep.Sections))
	for i := range rep.Sections {
		assert.Equal(t, rep.Sections[i].Label, loaded.Sections[i].Label)
		assert.Equal(t, rep.Sections[i].Artifacts, loaded.Sections[i].Artifacts)
		assert.Equal(t, len(rep.Sections[i].Records), len(loaded.Sections[i].Records))
	}
}

func TestReadArtifactRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteArtifact(path, &model.Report{RunID: "r"}))

	_, err := ReadArtifact(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = ReadArtifact(path)
	require.NoError(t, err)
}
