package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditpipe/mail-audit/config"
	"github.com/auditpipe/mail-audit/distrib"
	"github.com/auditpipe/mail-audit/model"
	"github.com/auditpipe/mail-audit/notify"
	"github.com/auditpipe/mail-audit/report"
	"github.com/auditpipe/mail-audit/stats"
)

var (
	distReport      string
	distConfig      string
	distDestination string
	distOverwrite   bool
	distDryRun      bool
	distNotify      bool

	distSMTPHost    string
	distSMTPPort    int
	distSMTPUser    string
	distSMTPPass    string
	distSMTPFrom    string
	distSMTPSubject string
	distSMTPUseTLS  bool
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Copy report artifacts to per-recipient folders and optionally notify",
	RunE:  runDistribute,
}

func init() {
	flags := distributeCmd.Flags()
	flags.StringVar(&distReport, "report", "", "Path to the report artifact produced by extract")
	flags.StringVar(&distConfig, "config", "", "Path to the TOML run configuration")
	flags.StringVar(&distDestination, "destination", "", "Destination root for recipient folders (default NEW_<timestamp>)")
	flags.BoolVar(&distOverwrite, "overwrite", false, "Replace destination files that already exist")
	flags.BoolVar(&distDryRun, "dry-run", false, "Log the planned copies without touching the filesystem")
	flags.BoolVar(&distNotify, "notify", false, "Send a delivery notification to each recipient")

	flags.StringVar(&distSMTPHost, "smtp-host", "", "SMTP server used for notifications")
	flags.IntVar(&distSMTPPort, "smtp-port", 587, "SMTP server port")
	flags.StringVar(&distSMTPUser, "smtp-user", "", "SMTP username")
	flags.StringVar(&distSMTPPass, "smtp-pass", "", "SMTP password (falls back to SMTP_PASS env var)")
	flags.StringVar(&distSMTPFrom, "smtp-from", "", "Sender address for notifications")
	flags.StringVar(&distSMTPSubject, "smtp-subject", "", "Subject line for notifications")
	flags.BoolVar(&distSMTPUseTLS, "smtp-tls", false, "Use implicit TLS for the SMTP connection")

	_ = distributeCmd.MarkFlagRequired("report")
	_ = distributeCmd.MarkFlagRequired("config")
}

func runDistribute(cmd *cobra.Command, _ []string) error {
	logger, cleanup, err := setupLogger()
	if err != nil {
		return err
	}
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	cfg, err := config.Load(distConfig)
	if err != nil {
		return err
	}

	rep, err := report.ReadArtifact(distReport)
	if err != nil {
		return err
	}
	if fp := cfg.Fingerprint(); rep.ConfigFingerprint != "" && rep.ConfigFingerprint != fp {
		logger.Warn("configuration changed since the report was generated",
			"kind", model.WarnStaleConfig,
			"reportFingerprint", rep.ConfigFingerprint, "configFingerprint", fp)
	}

	destRoot := distDestination
	if destRoot == "" {
		destRoot = fmt.Sprintf("NEW_%s", time.Now().Format("20060102150405"))
	}

	var notifier notify.Notifier
	if distNotify {
		pass := distSMTPPass
		if pass == "" {
			pass = os.Getenv("SMTP_PASS")
		}
		notifier, err = notify.NewSMTPNotifier(notify.SMTPOptions{
			Host:     distSMTPHost,
			Port:     distSMTPPort,
			Username: distSMTPUser,
			Password: pass,
			From:     distSMTPFrom,
			Subject:  distSMTPSubject,
			UseTLS:   distSMTPUseTLS,
		})
		if err != nil {
			return err
		}
	}

	plan, planWarnings := distrib.Plan(rep, cfg, destRoot)
	for _, warning := range planWarnings {
		logger.Warn("planning warning", "kind", warning.Kind, "subject", warning.Subject, "detail", warning.Detail)
	}
	logger.Info("distribution planned",
		"report", rep.RunID, "operations", len(plan.Ops),
		"destination", destRoot, "dryRun", distDryRun, "overwrite", distOverwrite)

	ctx := cmd.Context()
	bus := stats.NewBus(ctx, logger)
	stats.NewReporter(bus, logger)

	executor := distrib.NewExecutor(distrib.ExecOptions{
		Overwrite: distOverwrite,
		DryRun:    distDryRun,
		Notify:    distNotify,
		DestRoot:  destRoot,
	}, notifier, bus, logger)

	summary := executor.Execute(ctx, plan, cfg.Recipients)
	bus.Close()

	logger.Info("distribution finished", summary.LogAttrs()...)
	if err := ctx.Err(); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d copy operations failed", summary.Failed, len(plan.Ops))
	}
	return nil
}
