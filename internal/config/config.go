// Package config loads the process configuration surface enumerated in
// spec.md §6, following the teacher's env-first-then-YAML-defaults layering.
package config

import "time"

// LLMProviderConfig configures one LLM backend.
type LLMProviderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// LLMConfig selects and configures the providers available to the LLM
// Adapter (C3). Provider is the organization-level preference; the adapter
// always resolves it to a primary and exactly one fallback.
type LLMConfig struct {
	Provider     string // "anthropic" | "openai" | "google"
	Fallback     string
	Anthropic    LLMProviderConfig
	OpenAI       LLMProviderConfig
	Google       LLMProviderConfig
	CallTimeout  time.Duration
	ChunkTokens  int
	ExtractParallelism int
}

// QdrantConfig configures the vector-store backend of the Memory-Store
// Adapter (C2).
type QdrantConfig struct {
	DSN        string
	Collection string
	Dimensions int
	Metric     string
}

// PostgresConfig configures the relational backend holding Caller,
// Conversation, Agent, and Organization rows.
type PostgresConfig struct {
	DSN string
}

// RedisConfig backs the Agent-Profile Cache (C4) and the distributed
// per-caller extraction lock (C5 §7).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures cross-agent memory propagation (C5).
type KafkaConfig struct {
	Brokers        []string
	ShareableTopic string
	ReinforceTopic string
}

// S3Config configures the optional object-storage backend for the
// Persistent Payload Store (C10).
type S3Config struct {
	Enabled   bool
	Bucket    string
	Region    string
	Prefix    string
	AccessKey string
	SecretKey string
}

// ClickHouseConfig configures the optional analytics sink for job and
// search metrics.
type ClickHouseConfig struct {
	Enabled bool
	DSN     string
	Database string
}

// OIDCConfig configures operator authentication for the admin API,
// distinct from the HMAC webhook signature scheme.
type OIDCConfig struct {
	Enabled      bool
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// ThresholdConfig holds the process-wide threshold defaults from spec.md §6,
// read from the environment. The `defaults:` block of the YAML file at
// ORG_DEFAULTS_PATH, when present, replaces each value it sets.
type ThresholdConfig struct {
	ShareThreshold      int
	SimilarityThreshold float64
	ConflictThreshold   float64
}

// DeadlineConfig holds the hard per-endpoint latency budgets from spec.md §5.
type DeadlineConfig struct {
	PreCall  time.Duration
	Search   time.Duration
	PostCall time.Duration
	Shutdown time.Duration
}

// JobConfig configures the bounded worker pool (C8).
type JobConfig struct {
	WorkerPoolSize int
	QueueCapacity  int
	RetryDelays    []time.Duration
	MaxAttempts    int
}

// Config is the fully resolved process configuration.
type Config struct {
	HMACSecret            []byte
	SignatureSkew         time.Duration
	AgentProfileTTL       time.Duration
	ContextMaxMemories    int
	ContextTokenBudget    int
	DataPath              string
	LogPath               string
	LogLevel              string
	LogPayloads           bool
	OrgDefaultsPath       string
	StoreCallTimeout      time.Duration
	ListenAddr            string
	AdminListenAddr       string
	RecoverySweepInterval time.Duration

	Deadlines  DeadlineConfig
	LLM        LLMConfig
	Qdrant     QdrantConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	S3         S3Config
	ClickHouse ClickHouseConfig
	OIDC       OIDCConfig
	Jobs       JobConfig
	Defaults   ThresholdConfig

	Telemetry TelemetryConfig
}

// TelemetryConfig mirrors observability.TelemetryConfig; kept separate here
// so internal/config does not import internal/observability.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
}
