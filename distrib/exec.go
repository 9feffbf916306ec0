package distrib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/model"
	"github.com/auditpipe/mail-audit/notify"
	"github.com/auditpipe/mail-audit/stats"
)

// ExecOptions control how a distribution plan is executed.
type ExecOptions struct {
	// Overwrite replaces existing destination files. The prior content
	// is unrecoverable, so this stays off unless explicitly requested.
	Overwrite bool

	// DryRun validates every operation and records the intended action
	// without touching the filesystem or sending notifications.
	DryRun bool

	// Notify sends one summary notification per recipient after that
	// recipient's operations completed.
	Notify bool

	// DestRoot is the destination root the plan was computed against,
	// included in notification payloads.
	DestRoot string
}

// Executor performs the planned copies in plan order and dispatches
// notifications.
type Executor struct {
	opts     ExecOptions
	notifier notify.Notifier
	bus      *stats.Bus
	logger   *slog.Logger
}

func NewExecutor(opts ExecOptions, notifier notify.Notifier, bus *stats.Bus, logger *slog.Logger) *Executor {
	return &Executor{opts: opts, notifier: notifier, bus: bus, logger: logger}
}

// Execute runs the plan. Per-recipient delivery lists are accumulated
// in plan order; a failed copy or notification never aborts the
// remaining operations.
func (e *Executor) Execute(ctx context.Context, plan model.DistributionPlan, recipients []config.Recipient) model.ExecSummary {
	var summary model.ExecSummary

	addresses := make(map[string]string, len(recipients))
	for _, r := range recipients {
		addresses[r.ID] = r.Address
	}

	delivered := make(map[string][]string)
	var recipientOrder []string

	for _, op := range plan.Ops {
		if ctx.Err() != nil {
			break
		}

		ok := e.executeOp(ctx, op, &summary)
		if ok {
			if _, seen := delivered[op.RecipientID]; !seen {
				recipientOrder = append(recipientOrder, op.RecipientID)
			}
			delivered[op.RecipientID] = append(delivered[op.RecipientID],
				filepath.Join(op.DisplayName, filepath.Base(op.DestPath)))
		}
	}

	if e.opts.Notify && !e.opts.DryRun {
		e.notifyRecipients(ctx, recipientOrder, delivered, addresses, &summary)
	} else if e.opts.Notify && e.logger != nil {
		e.logger.Info("dry run: notifications suppressed", "recipients", len(recipientOrder))
	}

	return summary
}

// executeOp handles one copy operation and reports whether the artifact
// counts as delivered (copied, overwritten or dry-run validated).
func (e *Executor) executeOp(ctx context.Context, op model.CopyOp, summary *model.ExecSummary) bool {
	if _, err := os.Stat(op.SourcePath); err != nil {
		summary.Failed++
		summary.Warnings = append(summary.Warnings, model.Warning{
			Kind:    model.WarnSourceArtifactMissing,
			Subject: op.SourcePath,
			Detail:  fmt.Sprintf("recipient %s", op.RecipientID),
		})
		e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeCopyFailed, Path: op.SourcePath, Err: err})
		if e.logger != nil {
			e.logger.Warn("source artifact missing", "source", op.SourcePath, "recipient", op.RecipientID)
		}
		return false
	}

	_, destErr := os.Stat(op.DestPath)
	destExists := destErr == nil

	if destExists && !e.opts.Overwrite {
		summary.Skipped++
		summary.Warnings = append(summary.Warnings, model.Warning{
			Kind:    model.WarnDestinationExists,
			Subject: op.DestPath,
			Detail:  fmt.Sprintf("recipient %s", op.RecipientID),
		})
		e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeCopySkipped, Path: op.DestPath})
		if e.logger != nil {
			e.logger.Warn("destination exists, copy skipped", "dest", op.DestPath)
		}
		return false
	}

	if e.opts.DryRun {
		if err := checkDestWritable(op.DestPath); err != nil {
			summary.Failed++
			summary.Warnings = append(summary.Warnings, model.Warning{
				Kind:    model.WarnCopyFailed,
				Subject: op.DestPath,
				Detail:  err.Error(),
			})
			e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeCopyFailed, Path: op.DestPath, Err: err})
			if e.logger != nil {
				e.logger.Warn("destination not writable", "dest", op.DestPath, "err", err)
			}
			return false
		}
		summary.DryRun++
		e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeDryRunCopy, Path: op.DestPath})
		if e.logger != nil {
			e.logger.Debug("dry-run copy", "source", op.SourcePath, "dest", op.DestPath, "overwrite", destExists)
		}
		return true
	}

	if err := copyFile(op.SourcePath, op.DestPath); err != nil {
		summary.Failed++
		summary.Warnings = append(summary.Warnings, model.Warning{
			Kind:    model.WarnCopyFailed,
			Subject: op.DestPath,
			Detail:  err.Error(),
		})
		e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeCopyFailed, Path: op.DestPath, Err: err})
		if e.logger != nil {
			e.logger.Error("copy failed", "source", op.SourcePath, "dest", op.DestPath, "err", err)
		}
		return false
	}

	if destExists {
		summary.Overwritten++
		e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeOverwritten, Path: op.DestPath})
		if e.logger != nil {
			e.logger.Warn("destination overwritten, prior content lost", "dest", op.DestPath)
		}
	} else {
		summary.Copied++
		e.emit(stats.Event{Stage: stats.StageCopy, Type: stats.EventTypeCopied, Path: op.DestPath})
		if e.logger != nil {
			e.logger.Debug("copied", "source", op.SourcePath, "dest", op.DestPath)
		}
	}
	return true
}

func (e *Executor) notifyRecipients(ctx context.Context, order []string, delivered map[string][]string, addresses map[string]string, summary *model.ExecSummary) {
	if e.notifier == nil {
		return
	}
	for _, recipientID := range order {
		if ctx.Err() != nil {
			return
		}
		payload := notify.Summary{
			RecipientID: recipientID,
			Address:     addresses[recipientID],
			Files:       delivered[recipientID],
			Destination: filepath.Join(e.opts.DestRoot, recipientID),
			DeliveredAt: time.Now(),
		}
		if err := e.notifier.Notify(ctx, payload); err != nil {
			summary.NotifyFail++
			summary.Warnings = append(summary.Warnings, model.Warning{
				Kind:    model.WarnNotifyFailed,
				Subject: recipientID,
				Detail:  err.Error(),
			})
			e.emit(stats.Event{Stage: stats.StageNotify, Type: stats.EventTypeNotifyFailed, Err: err})
			if e.logger != nil {
				e.logger.Warn("notification failed", "recipient", recipientID, "err", err)
			}
			continue
		}
		summary.NotifySent++
		e.emit(stats.Event{Stage: stats.StageNotify, Type: stats.EventTypeNotifySent})
		if e.logger != nil {
			e.logger.Info("notification sent", "recipient", recipientID, "files", len(delivered[recipientID]))
		}
	}
}

// checkDestWritable verifies, without touching the filesystem, that the
// copy could create the destination: the nearest existing ancestor of
// the destination directory must be a writable directory.
func checkDestWritable(dest string) error {
	dir := filepath.Dir(dest)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", dir)
			}
			if info.Mode().Perm()&0o200 == 0 {
				return fmt.Errorf("%s is not writable", dir)
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		dir = parent
	}
}

// copyFile writes through a temp file in the destination directory and
// renames it into place, so an interrupted copy never leaves a partial
// destination and overwrites are atomic.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	destDir := filepath.Dir(dest)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(destDir, ".copy-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("copy contents: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("place destination: %w", err)
	}
	return nil
}

func (e *Executor) emit(evt stats.Event) {
	if e.bus != nil {
		e.bus.Emit(evt)
	}
}
