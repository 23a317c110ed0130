package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by TENET_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("TENET_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func envInt(key string, def int, valid func(int) bool) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || !valid(v) {
		return def
	}
	return v
}

func envFloat(key string, def float64, valid func(float64) bool) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || !valid(v) {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func positive[T int | float64](v T) bool { return v > 0 }

func unit(v float64) bool { return v >= 0 && v <= 1 }

func ServerPort() int {
	return envInt("SERVER_PORT", 8080, positive[int])
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// StoreBackend returns BackendMemory or BackendPostgres. Defaults to memory
// when DATABASE_URL is unset, postgres otherwise.
func StoreBackend() string {
	switch b := os.Getenv("STORE_BACKEND"); b {
	case BackendMemory, BackendPostgres:
		return b
	}
	if DatabaseURL() != "" {
		return BackendPostgres
	}
	return BackendMemory
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

// LLMProvider returns the configured reasoning provider.
// Defaults to "mock" if not set.
// Valid values: openai, anthropic, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "mock"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "anthropic":
		return AnthropicAPIKey()
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// LLMTimeout bounds a single appraisal call. Defaults to 20s.
func LLMTimeout() time.Duration {
	return envDuration("LLM_TIMEOUT", 20*time.Second)
}

// LLMMaxRetries is the number of extra attempts after a timed-out appraisal.
func LLMMaxRetries() int {
	return envInt("LLM_MAX_RETRIES", 2, func(v int) bool { return v >= 0 })
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "mock" if not set.
// Valid values: openai, mock, none
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "mock"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

// CapabilityURL is the base URL of the capability-execution service.
// Empty selects the in-process mock executor.
func CapabilityURL() string {
	return os.Getenv("CAPABILITY_URL")
}

func CapabilityAPIKey() string {
	return os.Getenv("CAPABILITY_API_KEY")
}

func CapabilityTimeout() time.Duration {
	return envDuration("CAPABILITY_TIMEOUT", 30*time.Second)
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return envFloat("RATE_LIMIT_RPS", 100, positive[float64])
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return envInt("RATE_LIMIT_BURST", 20, positive[int])
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func LearningRate() float64 {
	return envFloat("LEARNING_RATE", 0.15, func(v float64) bool { return v > 0 && v <= 1 })
}

// CascadeDepth is how many support hops an update travels. Zero disables
// the cascade.
func CascadeDepth() int {
	return envInt("CASCADE_DEPTH", 1, func(v int) bool { return v >= 0 })
}

func CascadeFraction() float64 {
	return envFloat("CASCADE_FRACTION", 0.3, unit)
}

func GuidanceThreshold() float64 {
	return envFloat("GUIDANCE_THRESHOLD", 0.4, unit)
}

func AutonomousThreshold() float64 {
	return envFloat("AUTONOMOUS_THRESHOLD", 0.7, unit)
}

func MaxRetries() int {
	return envInt("MAX_RETRIES", 3, func(v int) bool { return v >= 0 })
}

func RetryBaseDelay() time.Duration {
	return envDuration("RETRY_BASE_DELAY", 500*time.Millisecond)
}

// RetryMaxDelay caps a single backoff. Zero means uncapped.
func RetryMaxDelay() time.Duration {
	return envDuration("RETRY_MAX_DELAY", 30*time.Second)
}

func EscalationSeverity() float64 {
	return envFloat("ESCALATION_SEVERITY", 0.7, func(v float64) bool { return v > 0 && v <= 1 })
}

func UpdateShards() int {
	return envInt("UPDATE_SHARDS", 8, positive[int])
}

func UpdateQueueSize() int {
	return envInt("UPDATE_QUEUE_SIZE", 256, positive[int])
}

func EscalationInboxSize() int {
	return envInt("ESCALATION_INBOX_SIZE", 1000, positive[int])
}

// PolicyFile is the optional YAML engine policy path.
func PolicyFile() string {
	return os.Getenv("ENGINE_POLICY_FILE")
}

// MemorySweepInterval is how often old memory records are pruned. Zero
// disables the sweeper.
func MemorySweepInterval() time.Duration {
	return envDuration("MEMORY_SWEEP_INTERVAL", time.Hour)
}

func MemoryRetentionAge() time.Duration {
	return envDuration("MEMORY_RETENTION_AGE", 720*time.Hour)
}

// MemoryMinRetention keeps old records whose retention weight reaches it.
func MemoryMinRetention() float64 {
	return envFloat("MEMORY_MIN_RETENTION", 0.1, unit)
}
