package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Chain              string
	MoralisURL         string
	MoralisAPIKey      string
	WebacyURL          string
	WebacyAPIKey       string
	RPCURL             string
	HTTPAddr           string
	RedisAddr          string
	RegistryCacheTTL   time.Duration
	RegistryDSN        string
	RegistrySQLitePath string
	MarketClickhouse   string
	OtelEndpoint       string
	LogLevel           string
	LogFormat          string
	LogFile            string
	LogMaxSizeMB       int
	LogMaxBackups      int
	FetchTimeout       time.Duration
	FetchWorkers       int
	DefaultMaxPages    int
	DefaultSensitivity string
	ProviderRateLimit  float64
	ProviderMaxRetries int
	NativePriceUSD     float64
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	LabelBatchSize     int
	LabelFlushInterval time.Duration
}

const (
	DefaultMoralisURL = "https://deep-index.moralis.io/api/v2.2"
	DefaultWebacyURL  = "https://api.webacy.com"
)

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	fetchTimeout, err := parseDurationEnv(source, "FETCH_TIMEOUT", 20*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDurationEnv(source, "REGISTRY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	fetchWorkers, err := parseUintEnv(source, "FETCH_WORKERS", 4)
	if err != nil {
		return Config{}, err
	}
	maxPages, err := parseUintEnv(source, "DEFAULT_MAX_PAGES", 5)
	if err != nil {
		return Config{}, err
	}
	if maxPages == 0 || maxPages > 10 {
		return Config{}, fmt.Errorf("invalid DEFAULT_MAX_PAGES: %d is outside 1..10", maxPages)
	}
	maxRetries, err := parseUintEnv(source, "PROVIDER_MAX_RETRIES", 3)
	if err != nil {
		return Config{}, err
	}
	logMaxSize, err := parseUintEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseUintEnv(source, "LOG_MAX_BACKUPS", 5)
	if err != nil {
		return Config{}, err
	}
	rateLimit, err := parseFloatEnv(source, "PROVIDER_RATE_LIMIT", 5)
	if err != nil {
		return Config{}, err
	}
	nativePrice, err := parseFloatEnv(source, "NATIVE_PRICE_USD", 0)
	if err != nil {
		return Config{}, err
	}

	sensitivity := strings.ToLower(stringEnv(source, "DEFAULT_SENSITIVITY", "medium"))
	switch sensitivity {
	case "low", "medium", "high":
	default:
		return Config{}, fmt.Errorf("invalid DEFAULT_SENSITIVITY: %q", sensitivity)
	}

	logFormat := strings.ToLower(stringEnv(source, "LOG_FORMAT", "text"))
	if logFormat != "text" && logFormat != "json" {
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: %q", logFormat)
	}

	labelBatchSize, err := parseUintEnv(source, "LABEL_BATCH_SIZE", 100)
	if err != nil {
		return Config{}, err
	}
	labelFlush, err := parseDurationEnv(source, "LABEL_FLUSH_INTERVAL", time.Second)
	if err != nil {
		return Config{}, err
	}

	kafkaBrokers := parseOptionalList(source, "KAFKA_BROKERS")

	return Config{
		Chain:              strings.ToLower(stringEnv(source, "CHAIN", "eth")),
		MoralisURL:         strings.TrimRight(stringEnv(source, "MORALIS_API_URL", DefaultMoralisURL), "/"),
		MoralisAPIKey:      stringEnv(source, "MORALIS_API_KEY", ""),
		WebacyURL:          strings.TrimRight(stringEnv(source, "WEBACY_API_URL", DefaultWebacyURL), "/"),
		WebacyAPIKey:       stringEnv(source, "WEBACY_API_KEY", ""),
		RPCURL:             stringEnv(source, "ETH_RPC_URL", ""),
		HTTPAddr:           stringEnv(source, "HTTP_ADDR", ":8080"),
		RedisAddr:          stringEnv(source, "REDIS_ADDR", ""),
		RegistryCacheTTL:   cacheTTL,
		RegistryDSN:        stringEnv(source, "REGISTRY_DSN", ""),
		RegistrySQLitePath: stringEnv(source, "REGISTRY_SQLITE_PATH", ""),
		MarketClickhouse:   stringEnv(source, "MARKET_CLICKHOUSE_DSN", ""),
		OtelEndpoint:       stringEnv(source, "OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:           stringEnv(source, "LOG_LEVEL", "info"),
		LogFormat:          logFormat,
		LogFile:            stringEnv(source, "LOG_FILE", ""),
		LogMaxSizeMB:       int(logMaxSize),
		LogMaxBackups:      int(logMaxBackups),
		FetchTimeout:       fetchTimeout,
		FetchWorkers:       int(max(fetchWorkers, 1)),
		DefaultMaxPages:    int(maxPages),
		DefaultSensitivity: sensitivity,
		ProviderRateLimit:  rateLimit,
		ProviderMaxRetries: int(maxRetries),
		NativePriceUSD:     nativePrice,
		KafkaBrokers:       kafkaBrokers,
		KafkaTopicPrefix:   stringEnv(source, "KAFKA_TOPIC_PREFIX", "txsentry"),
		KafkaGroupID:       stringEnv(source, "KAFKA_GROUP_ID", "txsentry-labeler"),
		LabelBatchSize:     int(max(labelBatchSize, 1)),
		LabelFlushInterval: labelFlush,
	}, nil
}

// RequireProvider fails when the transaction provider cannot be reached: without an API key
// only an explicitly configured endpoint (a proxy or a test double) is accepted.
func (c Config) RequireProvider() error {
	if c.MoralisAPIKey == "" && c.MoralisURL == DefaultMoralisURL {
		return errors.New("MORALIS_API_KEY is required")
	}
	return nil
}

// RequireKafka fails when no broker is configured.
func (c Config) RequireKafka() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	return nil
}

func stringEnv(source EnvSource, key, defaultValue string) string {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return defaultValue
	}
	return strings.TrimSpace(raw)
}

func parseUintEnv(source EnvSource, key string, defaultValue uint64) (uint64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseFloatEnv(source EnvSource, key string, defaultValue float64) (float64, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return value, nil
}

func parseDurationEnv(source EnvSource, key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}

func parseOptionalList(source EnvSource, key string) []string {
	raw, ok := source.Lookup(key)
	if !ok {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	return values
}
