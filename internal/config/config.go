package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/itbi-price-aggregation/internal/common"
	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
	"github.com/i474232898/itbi-price-aggregation/internal/itbi/sources"
)

// DefaultSourceURL serves São Paulo ITBI rows pre-aggregated by month, street and construction type.
const DefaultSourceURL = "https://7qrc3rfl2f226uqohfpkus4hzu0faves.lambda-url.us-west-2.on.aws"

type AppConfig struct {
	SourceURL  string `validate:"required,url"`
	PageSize   int    `validate:"gte=1,lte=50000"`
	MaxRecords int    `validate:"gte=1"`

	// HTTPTimeout bounds each page request.
	HTTPTimeout time.Duration `validate:"gt=0"`
	// RefreshTimeout bounds one whole fetch-and-normalize pass.
	RefreshTimeout time.Duration `validate:"gt=0"`
	// RefreshInterval controls periodic reloads; 0 disables them.
	RefreshInterval time.Duration `validate:"gte=0"`

	WindowMonths    int `validate:"gte=2,lte=240"`
	SuggestionLimit int `validate:"gte=1,lte=100"`
	Thresholds      itbi.Thresholds

	CommercialTokens   []string `validate:"min=1"`
	ExcludedTypologies []string

	LogLevel slog.Level
	Port     string `validate:"required,numeric"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found or error loading it", "error", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.SourceURL = getenvDefault("ITBI_SOURCE_URL", DefaultSourceURL)
	cfg.PageSize = getenvInt("PAGE_SIZE", sources.DefaultPageSize)
	cfg.MaxRecords = getenvInt("MAX_RECORDS", sources.DefaultMaxRecords)

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout, err = getenvDuration("REFRESH_TIMEOUT", "10m"); err != nil {
		return nil, err
	}
	// Scheduler interval: default daily; the source is republished monthly.
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", "24h"); err != nil {
		return nil, err
	}

	cfg.WindowMonths = getenvInt("WINDOW_MONTHS", itbi.DefaultWindowMonths)
	cfg.SuggestionLimit = getenvInt("SUGGESTION_LIMIT", itbi.DefaultSuggestionLimit)

	def := itbi.DefaultThresholds()
	if cfg.Thresholds.TrendPercent, err = getenvFloat("TREND_THRESHOLD_PCT", def.TrendPercent); err != nil {
		return nil, err
	}
	if cfg.Thresholds.LaunchZScore, err = getenvFloat("LAUNCH_ZSCORE", def.LaunchZScore); err != nil {
		return nil, err
	}
	cfg.Thresholds.LaunchMinCount = getenvInt("LAUNCH_MIN_COUNT", def.LaunchMinCount)
	cfg.Thresholds.LaunchDisplay = getenvInt("LAUNCH_DISPLAY", def.LaunchDisplay)

	cfg.CommercialTokens = common.SplitList(getenvDefault("COMMERCIAL_TOKENS", strings.Join(itbi.DefaultCommercialTokens, ",")))
	cfg.ExcludedTypologies = append([]string(nil), itbi.DefaultExcludedTypologies...)
	if v, ok := os.LookupEnv("EXCLUDED_TYPOLOGIES"); ok {
		// Set but blank disables the exclusion.
		cfg.ExcludedTypologies = common.SplitList(v)
		if cfg.ExcludedTypologies == nil {
			cfg.ExcludedTypologies = []string{}
		}
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenvDefault("LOG_LEVEL", "INFO"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.Port = getenvDefault("PORT", "8080")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, including the nested thresholds.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
