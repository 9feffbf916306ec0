package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Stage string

const (
	StageScan   Stage = "scan"
	StageMatch  Stage = "match"
	StageCopy   Stage = "copy"
	StageNotify Stage = "notify"
)

type EventType string

const (
	EventTypeSectionStarted EventType = "section_started"
	EventTypeSectionSkipped EventType = "section_skipped"
	EventTypeSectionDone    EventType = "section_done"
	EventTypeScanned        EventType = "scanned"
	EventTypeMatched        EventType = "matched"
	EventTypeCopied         EventType = "copied"
	EventTypeOverwritten    EventType = "overwritten"
	EventTypeCopySkipped    EventType = "copy_skipped"
	EventTypeDryRunCopy     EventType = "dry_run_copy"
	EventTypeCopyFailed     EventType = "copy_failed"
	EventTypeNotifySent     EventType = "notify_sent"
	EventTypeNotifyFailed   EventType = "notify_failed"
	EventTypeError          EventType = "error"
)

// Event is one pipeline occurrence. Section/message counters carry the
// two-level progress position: Index within Total messages of section
// SectionIndex out of SectionTotal.
type Event struct {
	Stage        Stage
	Type         EventType
	Section      string
	SectionIndex int
	SectionTotal int
	Index        int
	Total        int
	MessageID    string
	Path         string
	Err          error
}

type Summary struct {
	Scanned        int
	Matched        int
	SectionsDone   int
	SectionsSkiped int
	Copied         int
	Overwritten    int
	CopySkipped    int
	DryRunCopies   int
	CopyFailures   int
	NotifySent     int
	NotifyFailed   int
	Errors         int
	LastError      error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"matched", s.Matched,
		"sectionsDone", s.SectionsDone,
		"sectionsSkipped", s.SectionsSkiped,
		"copied", s.Copied,
		"overwritten", s.Overwritten,
		"copySkipped", s.CopySkipped,
		"dryRunCopies", s.DryRunCopies,
		"copyFailures", s.CopyFailures,
		"notifySent", s.NotifySent,
		"notifyFailed", s.NotifyFailed,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeMatched:
		c.summary.Matched++
	case EventTypeSectionDone:
		c.summary.SectionsDone++
	case EventTypeSectionSkipped:
		c.summary.SectionsSkiped++
	case EventTypeCopied:
		c.summary.Copied++
	case EventTypeOverwritten:
		c.summary.Overwritten++
	case EventTypeCopySkipped:
		c.summary.CopySkipped++
	case EventTypeDryRunCopy:
		c.summary.DryRunCopies++
	case EventTypeCopyFailed:
		c.summary.CopyFailures++
	case EventTypeNotifySent:
		c.summary.NotifySent++
	case EventTypeNotifyFailed:
		c.summary.NotifyFailed++
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

// EventStream is what subscribers attach to.
type EventStream interface {
	Subscribe(name string, fn func(context.Context, <-chan Event) error)
}

// Reporter consumes the event stream and logs a final summary.
type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.Subscribe("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("run summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}
