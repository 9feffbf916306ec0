package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/mailstore"
	"github.com/auditpipe/mail-audit/model"
	"github.com/auditpipe/mail-audit/progress"
	"github.com/auditpipe/mail-audit/report"
	"github.com/auditpipe/mail-audit/stats"
)

var (
	extractMailRoot string
	extractConfig   string
	extractOut      string
	extractSections []string
	extractSince    string
	extractUntil    string
	extractWorkers  int

	extractIMAPHost     string
	extractIMAPPort     int
	extractIMAPUser     string
	extractIMAPPass     string
	extractIMAPUseTLS   bool
	extractIMAPInsecure bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Scan the mail store against the rule set and write a report artifact",
	RunE:  runExtract,
}

func init() {
	flags := extractCmd.Flags()
	flags.StringVar(&extractMailRoot, "mail-root", "", "Root path of the filesystem mail store")
	flags.StringVar(&extractConfig, "config", "", "Path to the TOML run configuration")
	flags.StringVar(&extractOut, "out", "", "Report artifact path (default AUDIT_<timestamp>.json)")
	flags.StringArrayVar(&extractSections, "section", nil, "Section label override (repeatable; defaults to the configured sections)")
	flags.StringVar(&extractSince, "since", "", "Only extract messages sent at or after this time (DD/MM/YYYY [HH:MM:SS])")
	flags.StringVar(&extractUntil, "until", "", "Only extract messages sent at or before this time (DD/MM/YYYY [HH:MM:SS])")
	flags.IntVar(&extractWorkers, "workers", 1, "Number of sections scanned concurrently (above 1 the progress bar is disabled, output interleaves)")

	flags.StringVar(&extractIMAPHost, "imap-host", "", "Scan a live IMAP store instead of the filesystem")
	flags.IntVar(&extractIMAPPort, "imap-port", 993, "IMAP server port")
	flags.StringVar(&extractIMAPUser, "imap-user", "", "IMAP username")
	flags.StringVar(&extractIMAPPass, "imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
	flags.BoolVar(&extractIMAPUseTLS, "imap-tls", true, "Use TLS for the IMAP connection")
	flags.BoolVar(&extractIMAPInsecure, "imap-insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")

	_ = extractCmd.MarkFlagRequired("config")
}

func runExtract(cmd *cobra.Command, _ []string) error {
	logger, cleanup, err := setupLogger()
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	cfg, err := config.Load(extractConfig)
	if err != nil {
		return err
	}
	if len(extractSections) > 0 {
		cfg.Sections = extractSections
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	since, err := parseTimeFlag(extractSince)
	if err != nil {
		return fmt.Errorf("--since: %w", err)
	}
	until, err := parseTimeFlag(extractUntil)
	if err != nil {
		return fmt.Errorf("--until: %w", err)
	}

	store, err := buildStore(logger)
	if err != nil {
		return err
	}

	out := extractOut
	if out == "" {
		out = fmt.Sprintf("AUDIT_%s.json", time.Now().Format("20060102150405"))
	}

	ctx := cmd.Context()
	bus := stats.NewBus(ctx, logger)
	stats.NewReporter(bus, logger)
	if extractWorkers <= 1 {
		bar := progress.New(normalizeLogLevel())
		bus.Subscribe("progress", bar.Subscriber)
	}

	logger.Info("starting extraction",
		"mailRoot", extractMailRoot, "imapHost", extractIMAPHost,
		"sections", cfg.Sections, "out", out)

	builder, err := report.NewBuilder(cfg, store, report.Options{
		Logger:  logger,
		Bus:     bus,
		Workers: extractWorkers,
		Since:   since,
		Until:   until,
	})
	if err != nil {
		return err
	}

	rep, extractErr := builder.Extract(ctx, extractMailRoot)
	bus.Close()

	if rep != nil {
		if err := report.WriteArtifact(out, rep); err != nil {
			return err
		}
		logger.Info("report artifact written", "path", out, "records", rep.Records(), "fingerprint", rep.ConfigFingerprint)
	}
	if extractErr != nil {
		return extractErr
	}

	for _, warning := range rep.Warnings {
		logger.Warn("extraction warning", "kind", warning.Kind, "subject", warning.Subject, "detail", warning.Detail)
	}

	if unresolved := countWarnings(rep.Warnings, model.WarnSectionNotFound); unresolved > 0 {
		return fmt.Errorf("%d of %d sections could not be resolved", unresolved, len(cfg.Sections))
	}
	return nil
}

func buildStore(logger *slog.Logger) (mailstore.Store, error) {
	if extractIMAPHost != "" {
		pass := extractIMAPPass
		if pass == "" {
			pass = os.Getenv("IMAP_PASS")
		}
		return mailstore.NewIMAPStore(mailstore.IMAPOptions{
			Host:               extractIMAPHost,
			Port:               extractIMAPPort,
			Username:           extractIMAPUser,
			Password:           pass,
			UseTLS:             extractIMAPUseTLS,
			InsecureSkipVerify: extractIMAPInsecure,
		}, logger)
	}
	if extractMailRoot == "" {
		return nil, fmt.Errorf("either --mail-root or --imap-host is required")
	}
	return mailstore.NewDirStore(extractMailRoot, logger)
}

// parseTimeFlag accepts the date format the audit team works with,
// with or without a time of day.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"02/01/2006 15:04:05", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q, want DD/MM/YYYY [HH:MM:SS]", value)
}

func countWarnings(warnings []model.Warning, kind model.WarningKind) int {
	n := 0
	for _, w := range warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
