// Package config loads process settings from the environment and company
// thresholds from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"plantfleet/internal/fleet/domain"
)

// Config holds process settings.
type Config struct {
	DatabaseDriver     string
	DatabaseURL        string
	CompanyConfigPath  string
	LogLevel           string
	LogPretty          bool
	NotifyWebhookURL   string
	NotifyTemplate     string
	NotifySNSTopicARN  string
	AWSRegion          string
	NotifyDedupeWindow time.Duration
	NotifyCooldown     time.Duration
	NotifyTimeout      time.Duration
	NotifyMinSeverity  int
	MetricsTextfile    string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_DRIVER", "pgx")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("COMPANY_CONFIG", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)
	v.SetDefault("NOTIFY_WEBHOOK_URL", "")
	v.SetDefault("NOTIFY_TEMPLATE", "")
	v.SetDefault("NOTIFY_SNS_TOPIC_ARN", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("NOTIFY_DEDUPE_WINDOW", "0s")
	v.SetDefault("NOTIFY_COOLDOWN", "0s")
	v.SetDefault("NOTIFY_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_MIN_SEVERITY", 0)
	v.SetDefault("METRICS_TEXTFILE", "")
}

// Load reads settings from the environment. PG_DSN is accepted as a
// fallback for DATABASE_URL.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER"))),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		CompanyConfigPath:  v.GetString("COMPANY_CONFIG"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogPretty:          v.GetBool("LOG_PRETTY"),
		NotifyWebhookURL:   v.GetString("NOTIFY_WEBHOOK_URL"),
		NotifyTemplate:     v.GetString("NOTIFY_TEMPLATE"),
		NotifySNSTopicARN:  v.GetString("NOTIFY_SNS_TOPIC_ARN"),
		AWSRegion:          v.GetString("AWS_REGION"),
		NotifyDedupeWindow: v.GetDuration("NOTIFY_DEDUPE_WINDOW"),
		NotifyCooldown:     v.GetDuration("NOTIFY_COOLDOWN"),
		NotifyTimeout:      v.GetDuration("NOTIFY_TIMEOUT"),
		NotifyMinSeverity:  v.GetInt("NOTIFY_MIN_SEVERITY"),
		MetricsTextfile:    v.GetString("METRICS_TEXTFILE"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("PG_DSN")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	switch cfg.DatabaseDriver {
	case "pgx", "postgres", "sqlite":
	default:
		return Config{}, fmt.Errorf("config: unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	return cfg, nil
}

// LoadCompanyConfig reads company thresholds from a YAML file and overlays
// them on the defaults. An empty path yields the defaults.
func LoadCompanyConfig(path string) (domain.CompanyConfig, error) {
	defaults := domain.DefaultCompanyConfig()
	if path == "" {
		return defaults, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.CompanyConfig{}, fmt.Errorf("read company config: %w", err)
	}
	return ParseCompanyConfig(raw)
}

// ParseCompanyConfig decodes YAML company thresholds over the defaults.
func ParseCompanyConfig(raw []byte) (domain.CompanyConfig, error) {
	var override domain.CompanyConfig
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return domain.CompanyConfig{}, fmt.Errorf("parse company config: %w", err)
	}
	for i, band := range override.UtilizationThresholds {
		if !ascending(band) {
			return domain.CompanyConfig{}, fmt.Errorf("company config: utilization_thresholds[%d] must be ascending", i)
		}
	}
	if !ascending(override.TemperatureThresholds) {
		return domain.CompanyConfig{}, errors.New("company config: temperature_thresholds must be ascending")
	}
	return domain.DefaultCompanyConfig().Merge(override), nil
}

func ascending(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}
