package model

import "time"

// AuditRecord is one matched message as it appears in the report.
type AuditRecord struct {
	MessageID    string            `json:"message_id"`
	Section      string            `json:"section"`
	Sender       string            `json:"sender"`
	Recipients   []string          `json:"recipients,omitempty"`
	Subject      string            `json:"subject"`
	SentAt       time.Time         `json:"sent_at"`
	Action       string            `json:"action"`
	MatchedRules []string          `json:"matched_rules"`
	Fields       map[string]string `json:"fields,omitempty"`
	BodyRef      string            `json:"body_ref,omitempty"`
	Attachments  []AttachmentRef   `json:"attachments,omitempty"`
}

// Section groups the audit records of one mail-store section together
// with the on-disk artifacts backing them. Artifacts are listed in order
// of first appearance and are what the distribution planner ships.
type Section struct {
	Label     string        `json:"label"`
	Path      string        `json:"path,omitempty"`
	Scanned   int           `json:"scanned"`
	Records   []AuditRecord `json:"records"`
	Artifacts []string      `json:"artifacts,omitempty"`
}

// Report is the immutable result of one extraction run. Re-extraction
// produces a new Report rather than mutating an old one.
type Report struct {
	RunID             string    `json:"run_id"`
	GeneratedAt       time.Time `json:"generated_at"`
	ConfigFingerprint string    `json:"config_fingerprint"`
	MailRoot          string    `json:"mail_root,omitempty"`
	Sections          []Section `json:"sections"`
	Warnings          []Warning `json:"warnings,omitempty"`
}

// Section returns the section with the given label, if present.
func (r *Report) Section(label string) (*Section, bool) {
	for i := range r.Sections {
		if r.Sections[i].Label == label {
			return &r.Sections[i], true
		}
	}
	return nil, false
}

// Records returns the total number of audit records across all sections.
func (r *Report) Records() int {
	total := 0
	for _, s := range r.Sections {
		total += len(s.Records)
	}
	return total
}
