package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wdm0006/songlake/pkg/config"
	"github.com/wdm0006/songlake/pkg/etl"
	"github.com/wdm0006/songlake/pkg/logger"
	"github.com/wdm0006/songlake/pkg/metrics"
	"github.com/wdm0006/songlake/pkg/metrics/datadog"
	"github.com/wdm0006/songlake/pkg/metrics/prompush"
	"github.com/wdm0006/songlake/pkg/session"
)

var (
	version = "0.1.0-dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("songlake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "Print version and exit")
	configPath := fs.String("config", "", "Path to pipeline config (.toml, .yaml or .yml). Defaults reproduce the stock run.")
	credsPath := fs.String("credentials", "", "Path to the AWS key file (overrides aws.credentials_file)")
	verify := fs.Bool("verify", false, "Read every output table back after the run and print a summary")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "songlake", version)
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	if *credsPath != "" {
		cfg.AWS.CredentialsFile = *credsPath
	}

	log, closeLog, err := logger.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = closeLog() }()

	if err := setupMetrics(cfg.Metrics, log); err != nil {
		log.Error("metrics", "err", err)
		return 1
	}
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics: flush error", "err", err)
		}
	}()

	s, err := session.New(ctx, cfg, session.WithLogger(log))
	if err != nil {
		log.Error("init", "err", err)
		return 1
	}
	if err := etl.Run(ctx, s); err != nil {
		log.Error("run failed", "err", err, "kind", errorKind(err))
		return 1
	}
	if *verify {
		reports, err := etl.Verify(ctx, s)
		if err != nil {
			log.Error("verify failed", "err", err)
			return 1
		}
		for _, r := range reports {
			fmt.Fprint(stdout, r.Text())
		}
	}
	log.Info("run complete")
	return 0
}

func setupMetrics(cfg config.MetricsConfig, log *slog.Logger) error {
	switch cfg.Backend {
	case "", "none":
		log.Debug("metrics: disabled")
	case "prometheus":
		b, err := prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
		log.Info("metrics: pushgateway", "url", cfg.PushgatewayURL, "job", cfg.Job)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: cfg.DatadogAddr, Namespace: cfg.Namespace, GlobalTags: cfg.Tags})
		if err != nil {
			return err
		}
		metrics.SetBackend(b)
		log.Info("metrics: dogstatsd", "addr", cfg.DatadogAddr)
	default:
		return fmt.Errorf("unknown metrics backend %q", cfg.Backend)
	}
	return nil
}
