// Package report builds the audit report: it orchestrates the mail
// store scanner and the rule matcher over the configured sections and
// serializes the result as a JSON artifact.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/mailstore"
	"github.com/auditpipe/mail-audit/model"
	"github.com/auditpipe/mail-audit/rules"
	"github.com/auditpipe/mail-audit/stats"
)

// ProgressFunc receives two-level progress: message messageIndex of
// messageTotal within section sectionIndex of sectionTotal.
type ProgressFunc func(sectionIndex, sectionTotal, messageIndex, messageTotal int)

// Options tune one extraction run.
type Options struct {
	Logger   *slog.Logger
	Bus      *stats.Bus
	Progress ProgressFunc

	// Workers bounds how many sections scan concurrently. Sections are
	// read-only and independent; each accumulates into its own buffer
	// and buffers merge in configured order once all sections finish.
	Workers int

	// Since/Until restrict extraction to messages sent inside the
	// window. Zero values leave the corresponding bound open.
	Since time.Time
	Until time.Time
}

type Builder struct {
	cfg     config.Config
	store   mailstore.Store
	matcher *rules.Matcher
	opts    Options
}

func NewBuilder(cfg config.Config, store mailstore.Store, opts Options) (*Builder, error) {
	if store == nil {
		return nil, fmt.Errorf("mail store must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	matcher, err := rules.NewMatcher(cfg.Rules)
	if err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Builder{cfg: cfg, store: store, matcher: matcher, opts: opts}, nil
}

type sectionResult struct {
	section  model.Section
	warnings []model.Warning
	done     bool
}

// Extract scans every configured section and returns the report. A
// section that fails to resolve is skipped with a warning; an empty
// report is valid. On cancellation the report of the already completed
// sections is returned together with the context error.
func (b *Builder) Extract(ctx context.Context, root string) (*model.Report, error) {
	rep := &model.Report{
		RunID:             uuid.NewString(),
		GeneratedAt:       time.Now().UTC(),
		ConfigFingerprint: b.cfg.Fingerprint(),
		MailRoot:          root,
	}

	total := len(b.cfg.Sections)
	results := make([]sectionResult, total)
	sem := make(chan struct{}, b.opts.Workers)

	var wg sync.WaitGroup
	for i, label := range b.cfg.Sections {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, label string) {
				defer wg.Done()
				defer func() { <-sem }()
				results[i] = b.extractSection(ctx, i, total, label)
			}(i, label)
		}
		if ctx.Err() != nil {
			break
		}
	}
	wg.Wait()

	for _, res := range results {
		if !res.done {
			continue
		}
		rep.Sections = append(rep.Sections, res.section)
		rep.Warnings = append(rep.Warnings, res.warnings...)
	}

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	return rep, nil
}

func (b *Builder) extractSection(ctx context.Context, index, total int, label string) sectionResult {
	logger := b.opts.Logger

	messages, err := b.store.Messages(ctx, label)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return sectionResult{}
		}
		if logger != nil {
			logger.Warn("section skipped", "section", label, "err", err)
		}
		b.emit(stats.Event{
			Stage: stats.StageScan, Type: stats.EventTypeSectionSkipped,
			Section: label, SectionIndex: index, SectionTotal: total, Err: err,
		})
		return sectionResult{
			section:  model.Section{Label: label},
			warnings: []model.Warning{{Kind: model.WarnSectionNotFound, Subject: label, Detail: err.Error()}},
			done:     true,
		}
	}

	path, _ := b.store.Resolve(label)
	section := model.Section{Label: label, Path: path, Scanned: len(messages)}
	b.emit(stats.Event{
		Stage: stats.StageScan, Type: stats.EventTypeSectionStarted,
		Section: label, SectionIndex: index, SectionTotal: total, Total: len(messages),
	})

	seenArtifacts := make(map[string]struct{})
	for j, msg := range messages {
		if ctx.Err() != nil {
			return sectionResult{}
		}

		if b.opts.Progress != nil {
			b.opts.Progress(index, total, j+1, len(messages))
		}
		b.emit(stats.Event{
			Stage: stats.StageScan, Type: stats.EventTypeScanned,
			Section: label, SectionIndex: index, SectionTotal: total,
			Index: j + 1, Total: len(messages), MessageID: msg.ID,
		})

		if !b.inWindow(msg.SentAt) {
			continue
		}

		result := b.matcher.Evaluate(msg)
		if !result.Matched {
			continue
		}

		b.emit(stats.Event{
			Stage: stats.StageMatch, Type: stats.EventTypeMatched,
			Section: label, MessageID: msg.ID,
		})
		section.Records = append(section.Records, model.AuditRecord{
			MessageID:    msg.ID,
			Section:      label,
			Sender:       msg.Sender,
			Recipients:   msg.Recipients,
			Subject:      msg.Subject,
			SentAt:       msg.SentAt,
			Action:       result.Action,
			MatchedRules: result.MatchedRules,
			Fields:       result.Fields,
			BodyRef:      msg.BodyRef,
			Attachments:  msg.Attachments,
		})

		if msg.BodyRef != "" {
			if _, seen := seenArtifacts[msg.BodyRef]; !seen {
				seenArtifacts[msg.BodyRef] = struct{}{}
				section.Artifacts = append(section.Artifacts, msg.BodyRef)
			}
		}
	}

	b.emit(stats.Event{
		Stage: stats.StageScan, Type: stats.EventTypeSectionDone,
		Section: label, SectionIndex: index, SectionTotal: total, Total: len(messages),
	})
	if logger != nil {
		logger.Info("section extracted", "section", label, "scanned", len(messages), "matched", len(section.Records))
	}

	return sectionResult{section: section, done: true}
}

func (b *Builder) inWindow(sentAt time.Time) bool {
	if sentAt.IsZero() {
		return true
	}
	if !b.opts.Since.IsZero() && sentAt.Before(b.opts.Since) {
		return false
	}
	if !b.opts.Until.IsZero() && sentAt.After(b.opts.Until) {
		return false
	}
	return true
}

func (b *Builder) emit(evt stats.Event) {
	if b.opts.Bus != nil {
		b.opts.Bus.Emit(evt)
	}
}
