package model

// CopyOp is one planned file placement from a source artifact to a
// recipient-specific destination.
type CopyOp struct {
	SourcePath  string `json:"source_path"`
	DestPath    string `json:"dest_path"`
	RecipientID string `json:"recipient_id"`
	DisplayName string `json:"display_name"`
}

// DistributionPlan is the ordered sequence of copy operations derived
// from a report. It is computed once and consumed exactly once.
type DistributionPlan struct {
	ReportRunID string   `json:"report_run_id"`
	Fingerprint string   `json:"fingerprint"`
	Ops         []CopyOp `json:"ops"`
}

// ExecSummary reports the outcome of executing a distribution plan.
type ExecSummary struct {
	Copied      int
	Overwritten int
	Skipped     int
	DryRun      int
	Failed      int
	NotifySent  int
	NotifyFail  int
	Warnings    []Warning
}

func (s ExecSummary) LogAttrs() []any {
	return []any{
		"copied", s.Copied,
		"overwritten", s.Overwritten,
		"skipped", s.Skipped,
		"dryRun", s.DryRun,
		"failed", s.Failed,
		"notifySent", s.NotifySent,
		"notifyFailed", s.NotifyFail,
		"warnings", len(s.Warnings),
	}
}
