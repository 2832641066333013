// Package config loads service configuration from the environment and
// holds the static language tables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all settings for the translation service.
type Configuration struct {
	Service       ServiceConfig
	Engine        EngineConfig
	Audio         AudioConfig
	Upload        UploadConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// EngineConfig holds settings for the translation engine adapter.
type EngineConfig struct {
	Provider     string // "gummy" or "mock"
	Endpoint     string
	Model        string
	Format       string
	SampleRateHz int
	APIKey       string // default key, per-session keys take precedence
}

// AudioConfig holds audio framing and pacing settings.
type AudioConfig struct {
	FrameBytes   int
	PaddingBytes int
	SettleDelay  time.Duration
	FrameDelay   time.Duration
}

// UploadConfig holds settings for uploaded audio storage.
type UploadConfig struct {
	Dir          string
	MaxBodyBytes int64
}

// KafkaConfig holds settings for the optional event mirror publisher.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsAddr string
}

// Load reads configuration from environment variables, falling back to
// defaults on missing or unparseable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-speech-translation")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "5000"),
		},
		Engine: EngineConfig{
			Provider:     envOrDefault("ENGINE_PROVIDER", "mock"),
			Endpoint:     envOrDefault("ENGINE_ENDPOINT", "wss://dashscope.aliyuncs.com/api-ws/v1/inference"),
			Model:        envOrDefault("ENGINE_MODEL", "gummy-realtime-v1"),
			Format:       envOrDefault("ENGINE_AUDIO_FORMAT", "pcm"),
			SampleRateHz: envOrDefaultInt("ENGINE_SAMPLE_RATE_HZ", 16000),
			APIKey:       os.Getenv("ENGINE_API_KEY"),
		},
		Audio: AudioConfig{
			FrameBytes:   envOrDefaultInt("AUDIO_FRAME_BYTES", 3200),
			PaddingBytes: envOrDefaultInt("AUDIO_PADDING_BYTES", 6400),
			SettleDelay:  envOrDefaultDuration("AUDIO_SETTLE_DELAY", 100*time.Millisecond),
			FrameDelay:   envOrDefaultDuration("AUDIO_FRAME_DELAY", 50*time.Millisecond),
		},
		Upload: UploadConfig{
			Dir:          envOrDefault("UPLOAD_DIR", "uploads"),
			MaxBodyBytes: envOrDefaultInt64("UPLOAD_MAX_BODY_BYTES", 2<<30),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "translation.segment.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "translation.segment.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
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

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
