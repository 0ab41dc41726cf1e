package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the StrumHub agent plane.
type Config struct {
	Port      int
	Version   string
	// DataFile is the in-memory store's snapshot path, used only when
	// Supabase is not configured. Empty disables persistence.
	DataFile  string
	// AgentsDir holds extra *.yaml agent definitions loaded after the
	// built-in catalogue.
	AgentsDir string
	// APIKeys guards /api/v1 when non-empty. The upstream auth layer
	// presents one of them alongside the X-User-* identity headers.
	APIKeys   []string
	Batch     BatchConfig
	Supabase  SupabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Analytics AnalyticsConfig
	Telemetry TelemetryConfig
	RateLimit RateLimitConfig
}

type BatchConfig struct {
	// Concurrency bounds how many batch items execute at once.
	Concurrency int
	// MaxItems rejects larger batches at the HTTP layer.
	MaxItems int
}

type SupabaseConfig struct {
	URL    string
	APIKey string
}

// Enabled reports whether a Supabase project is configured. Without one
// the server falls back to the in-memory store.
func (c SupabaseConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != ""
}

type RedisConfig struct {
	// URL is a redis:// connection string. Empty keeps rate limiting in-process.
	URL    string
	Prefix string
}

type LLMConfig struct {
	// Provider is "anthropic", "openai" or "ollama".
	Provider     string
	DefaultModel string
	AnthropicKey string
	OpenAIKey    string
	BaseURL      string
	Timeout      time.Duration
	// Fallbacks are "provider:model" entries tried after Provider fails.
	Fallbacks []string
	// Strategy is "fallback", "latency" or "round-robin".
	Strategy string
}

type AnalyticsConfig struct {
	BufferSize int
	// SQLitePath enables a local persistent log when Supabase is not configured.
	SQLitePath string
	Table      string
	// Retention is how long SQLite rows are kept. Zero keeps them forever.
	Retention         time.Duration
	RetentionInterval time.Duration
	// ArchiveDir receives expired rows as JSONL before they are purged.
	// Empty purges without archiving.
	ArchiveDir      string
	ArchiveCompress bool
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
	// Insecure disables TLS on the OTLP connection (local collectors).
	Insecure bool
	// SampleRatio is the fraction of root spans kept, 0..1.
	SampleRatio float64
}

type RateLimitConfig struct {
	// Overrides maps a role name to "max/window", e.g. "teacher=80/1m".
	Overrides     map[string]string
	SweepInterval time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:      envInt("STRUMHUB_PORT", 8080),
		Version:   envStr("STRUMHUB_VERSION", "0.4.0"),
		DataFile:  envStr("STRUMHUB_DATA_FILE", ""),
		AgentsDir: envStr("STRUMHUB_AGENTS_DIR", ""),
		APIKeys:   envList("STRUMHUB_API_KEYS"),
		Batch: BatchConfig{
			Concurrency: envInt("STRUMHUB_BATCH_CONCURRENCY", 4),
			MaxItems:    envInt("STRUMHUB_BATCH_MAX_ITEMS", 20),
		},
		Supabase: SupabaseConfig{
			URL:    envStr("SUPABASE_URL", ""),
			APIKey: envStr("SUPABASE_SERVICE_ROLE_KEY", envStr("SUPABASE_ANON_KEY", "")),
		},
		Redis: RedisConfig{
			URL:    envStr("REDIS_URL", ""),
			Prefix: envStr("STRUMHUB_RATELIMIT_PREFIX", "strumhub:rl:"),
		},
		LLM: LLMConfig{
			Provider:     envStr("STRUMHUB_LLM_PROVIDER", "anthropic"),
			DefaultModel: envStr("STRUMHUB_LLM_MODEL", "claude-3-5-haiku-latest"),
			AnthropicKey: envStr("ANTHROPIC_API_KEY", ""),
			OpenAIKey:    envStr("OPENAI_API_KEY", ""),
			BaseURL:      envStr("STRUMHUB_LLM_BASE_URL", ""),
			Timeout:      envDuration("STRUMHUB_LLM_TIMEOUT", 60*time.Second),
			Fallbacks:    envList("STRUMHUB_LLM_FALLBACKS"),
			Strategy:     envStr("STRUMHUB_LLM_STRATEGY", "fallback"),
		},
		Analytics: AnalyticsConfig{
			BufferSize: envInt("STRUMHUB_ANALYTICS_BUFFER", 1000),
			SQLitePath: envStr("STRUMHUB_ANALYTICS_SQLITE", ""),
			Table:      envStr("STRUMHUB_ANALYTICS_TABLE", "ai_agent_logs"),

			Retention:         envDuration("STRUMHUB_ANALYTICS_RETENTION", 30*24*time.Hour),
			RetentionInterval: envDuration("STRUMHUB_ANALYTICS_RETENTION_INTERVAL", time.Hour),
			ArchiveDir:        envStr("STRUMHUB_ANALYTICS_ARCHIVE_DIR", ""),
			ArchiveCompress:   envBool("STRUMHUB_ANALYTICS_ARCHIVE_GZIP", true),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "strumhub-agent-plane"),
			Insecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRatio:  envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		RateLimit: RateLimitConfig{
			Overrides:     envMap("STRUMHUB_RATE_LIMITS"),
			SweepInterval: envDuration("STRUMHUB_RATELIMIT_SWEEP", 5*time.Minute),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
	}
	return fallback
}

// envList parses "a,b,c", dropping empty items.
func envList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envMap parses "k1=v1,k2=v2".
func envMap(key string) map[string]string {
	out := make(map[string]string)
	v := os.Getenv(key)
	if v == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return out
}
