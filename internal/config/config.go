package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// FITS API.
	FITSBaseURL string
	FITSTimeout time.Duration

	// Session state.
	CacheSize          int
	CacheTTL           time.Duration
	SessionIdleTimeout time.Duration
	ChartWidth         int
	ChartHeight        int

	// Shared response cache. Empty ValkeyAddr keeps it in memory, holding
	// at most ResponseCacheSize responses.
	ValkeyAddr        string
	ResponseCacheSize int
	ResponseCacheTTL  time.Duration

	// Observation update notices.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fitsTimeout, err := parsePositiveDuration("FITS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parsePositiveDuration("CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	idleTimeout, err := parsePositiveDuration("SESSION_IDLE_TIMEOUT", "30m")
	if err != nil {
		return nil, err
	}
	responseTTL, err := parsePositiveDuration("RESPONSE_CACHE_TTL", "5m")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("CACHE_SIZE", 500, 100000)
	if err != nil {
		return nil, err
	}
	responseSize, err := parsePositiveInt("RESPONSE_CACHE_SIZE", 1000, 100000)
	if err != nil {
		return nil, err
	}
	chartWidth, err := parsePositiveInt("CHART_WIDTH", 896, 10000)
	if err != nil {
		return nil, err
	}
	chartHeight, err := parsePositiveInt("CHART_HEIGHT", 512, 10000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		FITSBaseURL: strings.TrimRight(envOrDefault("FITS_BASE_URL", "https://fits.geonet.org.nz"), "/"),
		FITSTimeout: fitsTimeout,

		CacheSize:          cacheSize,
		CacheTTL:           cacheTTL,
		SessionIdleTimeout: idleTimeout,
		ChartWidth:         chartWidth,
		ChartHeight:        chartHeight,

		ValkeyAddr:        os.Getenv("VALKEY_ADDR"),
		ResponseCacheSize: responseSize,
		ResponseCacheTTL:  responseTTL,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "fits-observation-updates"),
		KafkaGroupID: envOrDefault("KAFKA_GROUP_ID", "fits-map-service"),
	}

	u, err := url.Parse(cfg.FITSBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("invalid FITS_BASE_URL")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def, maxValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > maxValue {
		return 0, fmt.Errorf("invalid %s: must be between 1 and %d", key, maxValue)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
