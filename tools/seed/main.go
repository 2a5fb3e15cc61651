package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"plantfleet/internal/config"
	"plantfleet/internal/fleet/infrastructure/sqlstore"
	"plantfleet/internal/fleet/seed"
	"plantfleet/internal/observability/logging"
)

type options struct {
	sitePrefix string
	sites      int
	plants     int
	startDate  string
	days       int
	region     string
	migrate    bool
}

func main() {
	opts := parseOptions()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	start, err := parseStartDate(opts.startDate, opts.days)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid start-date")
	}

	ctx := context.Background()
	st, err := sqlstore.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	if opts.migrate {
		if err := st.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	summary, err := seed.Fleet(ctx, st, seed.Options{
		SitePrefix:    opts.sitePrefix,
		Sites:         opts.sites,
		PlantsPerSite: opts.plants,
		Start:         start,
		Days:          opts.days,
		Region:        opts.region,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed fleet")
	}
	fmt.Println(strings.Join(summary.SiteNums, "\n"))
}

func parseOptions() options {
	opts := options{}
	flag.StringVar(&opts.sitePrefix, "site-prefix", "site-", "site id prefix")
	flag.IntVar(&opts.sites, "sites", 10, "number of sites to seed")
	flag.IntVar(&opts.plants, "plants", 2, "power plants per site")
	flag.StringVar(&opts.startDate, "start-date", "", "first routine date (YYYY-MM-DD or RFC3339)")
	flag.IntVar(&opts.days, "days", 7, "daily routines per plant")
	flag.StringVar(&opts.region, "region", "", "region assigned to every site")
	flag.BoolVar(&opts.migrate, "migrate", false, "create the documents table first")
	flag.Parse()
	return opts
}

func parseStartDate(value string, days int) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
