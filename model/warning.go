package model

import "fmt"

// WarningKind classifies the recoverable conditions a run can hit.
type WarningKind string

const (
	WarnSectionNotFound       WarningKind = "section_not_found"
	WarnMissingSection        WarningKind = "missing_section"
	WarnDestinationExists     WarningKind = "destination_exists"
	WarnSourceArtifactMissing WarningKind = "source_artifact_missing"
	WarnCopyFailed            WarningKind = "copy_failed"
	WarnNotifyFailed          WarningKind = "notify_failed"
	WarnStaleConfig           WarningKind = "stale_config"
)

// Warning is a recoverable condition surfaced in the run summary
// instead of aborting the run.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject"`
	Detail  string      `json:"detail,omitempty"`
}

func (w Warning) String() string {
	if w.Detail == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Subject)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Subject, w.Detail)
}
