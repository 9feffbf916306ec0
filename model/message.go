package model

import "time"

// AttachmentRef identifies one attachment of a scanned message. Path is
// only set when the attachment has been materialized on disk.
type AttachmentRef struct {
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// RawMessage is one fully materialized message from the mail store.
// It is never mutated after the scanner yields it.
type RawMessage struct {
	Section     string
	FolderPath  string
	ID          string
	Sender      string
	Recipients  []string
	Subject     string
	SentAt      time.Time
	Body        string
	BodyRef     string
	Attachments []AttachmentRef
}

// MatchResult is the outcome of evaluating one message against the rule set.
type MatchResult struct {
	Matched      bool
	Action       string
	MatchedRules []string
	Fields       map[string]string
}
