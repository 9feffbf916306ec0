package distrib

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/model"
)

func planConfig() config.Config {
	return config.Config{
		Sections: []string{"Internal", "Others"},
		Rules: []config.Rule{
			{ID: "wire", Field: config.FieldSubject, Pattern: "wire transfer", Action: "flagged"},
		},
		Recipients: []config.Recipient{
			{ID: "fraud-team", Address: "fraud@example.com", Sections: []string{"Internal", "Others"}},
			{ID: "audit-lead", Address: "lead@example.com", Sections: []string{"Internal"}},
		},
		Renames: map[string]string{"Internal": "Internal Fraud"},
	}
}

func planReport() *model.Report {
	return &model.Report{
		RunID:             "run-1",
		ConfigFingerprint: "fp-1",
		Sections: []model.Section{
			{
				Label:     "Internal",
				Artifacts: []string{"/mail/Internal/001.eml", "/mail/Internal/007.eml"},
			},
			{
				Label:     "Others",
				Artifacts: []string{"/mail/Others.mbox"},
			},
		},
	}
}

func TestPlanOrdering(t *testing.T) {
	plan, warnings := Plan(planReport(), planConfig(), "/dist")
	require.Empty(t, warnings)
	require.Len(t, plan.Ops, 5)

	assert.Equal(t, "run-1", plan.ReportRunID)
	assert.Equal(t, "fp-1", plan.Fingerprint)

	// Recipient order first, then the recipient's label order.
	assert.Equal(t, filepath.Join("/dist", "fraud-team", "Internal Fraud", "001.eml"), plan.Ops[0].DestPath)
	assert.Equal(t, filepath.Join("/dist", "fraud-team", "Internal Fraud", "007.eml"), plan.Ops[1].DestPath)
	assert.Equal(t, filepath.Join("/dist", "fraud-team", "Others", "Others.mbox"), plan.Ops[2].DestPath)
	assert.Equal(t, filepath.Join("/dist", "audit-lead", "Internal Fraud", "001.eml"), plan.Ops[3].DestPath)
	assert.Equal(t, filepath.Join("/dist", "audit-lead", "Internal Fraud", "007.eml"), plan.Ops[4].DestPath)
}

func TestPlanIsPure(t *testing.T) {
	rep, cfg := planReport(), planConfig()
	first, _ := Plan(rep, cfg, "/dist")
	second, _ := Plan(rep, cfg, "/dist")
	assert.Equal(t, first, second, "planning identical inputs twice must yield identical plans")
}

func TestPlanMissingSection(t *testing.T) {
	cfg := planConfig()
	cfg.Recipients = []config.Recipient{
		{ID: "fraud-team", Address: "fraud@example.com", Sections: []string{"Flagged"}},
	}

	plan, warnings := Plan(planReport(), cfg, "/dist")
	assert.Empty(t, plan.Ops, "a recipient referencing an absent section gets zero ops")
	require.Len(t, warnings, 1)
	assert.Equal(t, model.WarnMissingSection, warnings[0].Kind)
	assert.Equal(t, "Flagged", warnings[0].Subject)
}

func TestPlanRenameFallback(t *testing.T) {
	cfg := planConfig()
	cfg.Renames = nil

	plan, _ := Plan(planReport(), cfg, "/dist")
	require.NotEmpty(t, plan.Ops)
	assert.Equal(t, "Internal", plan.Ops[0].DisplayName, "missing rename entry falls back to the raw label")
}

func TestPlanEmptyReport(t *testing.T) {
	plan, warnings := Plan(&model.Report{RunID: "r"}, planConfig(), "/dist")
	assert.Empty(t, plan.Ops)
	assert.Len(t, warnings, 3, "every recipient section reference is reported once")
}
