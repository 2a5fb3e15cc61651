package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"plantfleet/internal/alerts/notify"
	"plantfleet/internal/config"
	"plantfleet/internal/fleet/application"
	"plantfleet/internal/fleet/infrastructure/sqlstore"
	"plantfleet/internal/observability/logging"
	"plantfleet/internal/observability/metrics"
)

func main() {
	requestPath := flag.String("request", "", "path to an update site request (JSON), - for stdin")
	migrate := flag.Bool("migrate", false, "create the documents table before applying the request")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *requestPath, *migrate); err != nil {
		logger.Error().Err(err).Msg("plantfleet failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, requestPath string, migrate bool) error {
	st, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	if migrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("documents table ready")
	}
	if requestPath == "" {
		if migrate {
			return nil
		}
		return errors.New("-request is required")
	}

	metrics.Init(st, logger)
	defer writeMetrics(cfg.MetricsTextfile, logger)

	company, err := config.LoadCompanyConfig(cfg.CompanyConfigPath)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(ctx, cfg, logger)
	if err != nil {
		return err
	}

	opts := []application.ServiceOption{application.WithLogger(logger)}
	if notifier != nil {
		opts = append(opts, application.WithNotifier(notifier))
	}
	service, err := application.NewService(st, application.StaticCompanyConfig(company), opts...)
	if err != nil {
		return err
	}

	req, err := readRequest(requestPath)
	if err != nil {
		return err
	}
	outcome, err := service.UpdateSite(ctx, req)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(summarize(outcome))
}

func buildNotifier(ctx context.Context, cfg config.Config, logger zerolog.Logger) (application.ConditionNotifier, error) {
	var channels []notify.Channel
	if cfg.NotifyWebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.NotifyWebhookURL)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	if cfg.NotifySNSTopicARN != "" {
		channel, err := notify.NewSNSChannelFromRegion(ctx, cfg.AWSRegion, cfg.NotifySNSTopicARN)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	if len(channels) == 0 {
		return nil, nil
	}

	tpl, err := notify.NewTemplate(cfg.NotifyTemplate)
	if err != nil {
		return nil, fmt.Errorf("notify template: %w", err)
	}
	notifiers := make([]application.ConditionNotifier, 0, len(channels))
	for _, channel := range channels {
		notifier, err := notify.NewNotifier(channel, tpl,
			notify.WithLogger(logger),
			notify.WithDedupeWindow(cfg.NotifyDedupeWindow),
			notify.WithCooldown(cfg.NotifyCooldown),
			notify.WithRequestTimeout(cfg.NotifyTimeout),
			notify.WithMinSeverity(cfg.NotifyMinSeverity),
		)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notifier)
	}
	return notify.NewMultiNotifier(notifiers...), nil
}

func readRequest(path string) (application.UpdateSiteRequest, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return application.UpdateSiteRequest{}, fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	}
	var req application.UpdateSiteRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return application.UpdateSiteRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

type outcomeSummary struct {
	SiteID            string   `json:"siteId"`
	PlantID           string   `json:"plantId,omitempty"`
	PreviousCondition *int     `json:"previousCondition,omitempty"`
	Condition         *int     `json:"condition,omitempty"`
	SerialStatus      *int     `json:"serialStatus,omitempty"`
	LogItemIDs        []string `json:"logItemIds"`
}

func summarize(outcome *application.Outcome) outcomeSummary {
	summary := outcomeSummary{
		SiteID:            outcome.SiteID,
		PlantID:           outcome.PlantID,
		PreviousCondition: outcome.PreviousCondition,
		Condition:         outcome.Condition,
		SerialStatus:      outcome.SerialStatus,
		LogItemIDs:        make([]string, 0, len(outcome.LogItems)),
	}
	for _, item := range outcome.LogItems {
		summary.LogItemIDs = append(summary.LogItemIDs, item.ID)
	}
	return summary
}

func writeMetrics(path string, logger zerolog.Logger) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("write metrics textfile")
	}
}
