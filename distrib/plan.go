// Package distrib turns a report into per-recipient copy operations and
// executes them against the filesystem.
package distrib

import (
	"fmt"
	"path/filepath"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/model"
)

// Plan computes the ordered copy operations for one report: recipient
// table order first, then the recipient's section label order. A label
// absent from the report yields a MissingSectionWarning and no ops. The
// function is pure; planning the same inputs twice yields an identical
// plan.
func Plan(rep *model.Report, cfg config.Config, destRoot string) (model.DistributionPlan, []model.Warning) {
	plan := model.DistributionPlan{
		ReportRunID: rep.RunID,
		Fingerprint: rep.ConfigFingerprint,
	}
	var warnings []model.Warning

	for _, recipient := range cfg.Recipients {
		for _, label := range recipient.Sections {
			section, ok := rep.Section(label)
			if !ok {
				warnings = append(warnings, model.Warning{
					Kind:    model.WarnMissingSection,
					Subject: label,
					Detail:  fmt.Sprintf("referenced by recipient %s", recipient.ID),
				})
				continue
			}

			display := cfg.DisplayName(label)
			for _, artifact := range section.Artifacts {
				plan.Ops = append(plan.Ops, model.CopyOp{
					SourcePath:  artifact,
					DestPath:    filepath.Join(destRoot, recipient.ID, display, filepath.Base(artifact)),
					RecipientID: recipient.ID,
					DisplayName: display,
				})
			}
		}
	}

	return plan, warnings
}
