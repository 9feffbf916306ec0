package progress

import (
	"context"
	"fmt"
	"sync"

	"github.com/pterm/pterm"

	"github.com/auditpipe/mail-audit/stats"
)

// Bar renders two-level extraction progress: a section counter and a
// per-message progress bar for the section being scanned.
type Bar struct {
	mu      sync.Mutex
	pb      *pterm.ProgressbarPrinter
	enabled bool
}

// New creates the progress renderer. It stays silent unless logLevel is
// "info", matching how the rest of the pipeline logs.
func New(logLevel string) *Bar {
	return &Bar{enabled: logLevel == "info"}
}

// Subscriber consumes the stats event stream and drives the bars.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				b.stop()
				return nil
			}
			b.update(evt)
		}
	}
}

func (b *Bar) update(evt stats.Event) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeSectionStarted:
		b.stopLocked()
		title := fmt.Sprintf("Section %d/%d: %s", evt.SectionIndex+1, evt.SectionTotal, evt.Section)
		if evt.Total == 0 {
			pterm.Info.Printf("%s (empty)\n", title)
			return
		}
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(evt.Total).
			WithTitle(title).
			Start()
		b.pb = pb

	case stats.EventTypeScanned:
		if b.pb != nil {
			b.pb.Increment()
		}

	case stats.EventTypeSectionDone:
		b.stopLocked()
		pterm.Success.Printf("Section %s: %d scanned\n", evt.Section, evt.Total)

	case stats.EventTypeSectionSkipped:
		b.stopLocked()
		pterm.Warning.Printf("Section %s skipped: %v\n", evt.Section, evt.Err)

	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

func (b *Bar) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

func (b *Bar) stopLocked() {
	if b.pb != nil {
		if b.pb.Current < b.pb.Total {
			b.pb.Current = b.pb.Total
		}
		_, _ = b.pb.Stop()
		b.pb = nil
	}
}
