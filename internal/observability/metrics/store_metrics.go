package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"plantfleet/internal/fleet/domain"
)

const countTimeout = 2 * time.Second

// DocumentCounter reports how many documents a collection holds.
type DocumentCounter interface {
	CountDocuments(ctx context.Context, collection string) (int, error)
}

func registerStoreMetrics(counter DocumentCounter, logger zerolog.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "log_items_stored",
			Help: "Audit log items held by the store",
		},
		func() float64 {
			return queryCount(counter, logger, domain.CollectionLogItems)
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "site_configs_stored",
			Help: "Site config versions held by the store",
		},
		func() float64 {
			return queryCount(counter, logger, domain.CollectionSiteConfigs)
		},
	))
}

func queryCount(counter DocumentCounter, logger zerolog.Logger, collection string) float64 {
	if counter == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()
	count, err := counter.CountDocuments(ctx, collection)
	if err != nil {
		logger.Warn().Err(err).Str("collection", collection).Msg("metrics count failed")
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
