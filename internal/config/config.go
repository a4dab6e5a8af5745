// Package config loads service configuration from the environment and the
// recognizer settings from a TOML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Recognizer    RecognizerConfig
	Health        HealthConfig
	Kafka         KafkaConfig
	Translation   TranslationConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	Principal string
	GRPCPort  string
	HTTPPort  string
}

// RecognizerConfig selects and configures the speech recognizer.
type RecognizerConfig struct {
	Provider        string // mock, google
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
	SampleRateHz    int
	AudioEncoding   string
	AudioSource     string // WAV file streamed to the google recognizer
	SettingsFile    string // TOML file with hot-reloaded recognizer settings
	MockPace        time.Duration
}

// HealthConfig holds the escalation thresholds and pulse delay band.
type HealthConfig struct {
	ZombieAfter int
	PanicAfter  int
	RecoveryAt  int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Window      int
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicLive    string
	TopicHistory string
	Principal    string
}

// TranslationConfig holds translation provider settings. Translation is off
// unless both Target and APIKey are set.
type TranslationConfig struct {
	Provider  string
	Endpoint  string
	Target    string
	APIKey    string
	Formality string
	Model     string
	Timeout   time.Duration
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads configuration from environment variables. Values that fail to
// parse fall back to their defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-live-caption")

	return &Config{
		Service: ServiceConfig{
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Recognizer: RecognizerConfig{
			Provider:        envOrDefault("RECOGNIZER_PROVIDER", "mock"),
			Language:        envOrDefault("RECOGNIZER_LANGUAGE", "en-US"),
			Continuous:      envOrDefaultBool("RECOGNIZER_CONTINUOUS", true),
			InterimResults:  envOrDefaultBool("RECOGNIZER_INTERIM_RESULTS", true),
			MaxAlternatives: envOrDefaultInt("RECOGNIZER_MAX_ALTERNATIVES", 3),
			SampleRateHz:    envOrDefaultInt("RECOGNIZER_SAMPLE_RATE_HZ", 8000),
			AudioEncoding:   envOrDefault("RECOGNIZER_AUDIO_ENCODING", "LINEAR16"),
			AudioSource:     envOrDefault("RECOGNIZER_AUDIO_SOURCE", ""),
			SettingsFile:    envOrDefault("RECOGNIZER_SETTINGS_FILE", ""),
			MockPace:        envOrDefaultDuration("RECOGNIZER_MOCK_PACE", 300*time.Millisecond),
		},
		Health: HealthConfig{
			ZombieAfter: envOrDefaultInt("HEALTH_ZOMBIE_AFTER", 50),
			PanicAfter:  envOrDefaultInt("HEALTH_PANIC_AFTER", 75),
			RecoveryAt:  envOrDefaultInt("HEALTH_RECOVERY_AT", 80),
			MinDelay:    envOrDefaultDuration("HEALTH_MIN_DELAY", 100*time.Millisecond),
			MaxDelay:    envOrDefaultDuration("HEALTH_MAX_DELAY", 2*time.Second),
			Window:      envOrDefaultInt("HEALTH_WINDOW", 20),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultList("KAFKA_BROKERS", nil),
			TopicLive:    envOrDefault("KAFKA_TOPIC_LIVE", "caption.live"),
			TopicHistory: envOrDefault("KAFKA_TOPIC_HISTORY", "caption.history"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Translation: TranslationConfig{
			Provider:  envOrDefault("TRANSLATION_PROVIDER", "deepl"),
			Endpoint:  envOrDefault("TRANSLATION_ENDPOINT", "https://api.deepl.com/v2/translate"),
			Target:    envOrDefault("TRANSLATION_TARGET", ""),
			APIKey:    envOrDefault("TRANSLATION_API_KEY", ""),
			Formality: envOrDefault("TRANSLATION_FORMALITY", "default"),
			Model:     envOrDefault("TRANSLATION_MODEL", ""),
			Timeout:   envOrDefaultDuration("TRANSLATION_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envOrDefaultList splits a comma separated value, dropping empty entries.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
