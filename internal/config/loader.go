package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally .env),
// applies defaults for anything left unset, and layers an optional YAML
// file (ORG_DEFAULTS_PATH) over the threshold defaults. Mirrors the teacher's
// Load-then-apply-defaults structure in internal/config/loader.go.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	secret := strings.TrimSpace(os.Getenv("HMAC_SECRET"))
	if len(secret) < 32 {
		return Config{}, fmt.Errorf("HMAC_SECRET must be at least 32 bytes, got %d", len(secret))
	}
	cfg.HMACSecret = []byte(secret)

	cfg.SignatureSkew = envDurationSeconds("SIGNATURE_SKEW_SECONDS", 1800)
	cfg.AgentProfileTTL = envDurationSeconds("AGENT_PROFILE_TTL_SECONDS", 86400)
	cfg.ContextMaxMemories = envInt("CONTEXT_MAX_MEMORIES", 20)
	cfg.ContextTokenBudget = envInt("CONTEXT_TOKEN_BUDGET", 2000)
	cfg.DataPath = firstNonEmpty(os.Getenv("DATA_PATH"), "./data")
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))
	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), "info")
	cfg.LogPayloads = envBool("LOG_PAYLOADS", false)
	cfg.OrgDefaultsPath = strings.TrimSpace(os.Getenv("ORG_DEFAULTS_PATH"))
	cfg.StoreCallTimeout = envDurationSeconds("STORE_CALL_TIMEOUT_SECONDS", 10)
	cfg.ListenAddr = firstNonEmpty(os.Getenv("LISTEN_ADDR"), ":8080")
	cfg.AdminListenAddr = firstNonEmpty(os.Getenv("ADMIN_LISTEN_ADDR"), ":8081")
	cfg.RecoverySweepInterval = envDurationSeconds("RECOVERY_SWEEP_INTERVAL_SECONDS", 300)

	cfg.Deadlines = DeadlineConfig{
		PreCall:  envDurationMillis("PRE_CALL_DEADLINE_MS", 2000),
		Search:   envDurationMillis("SEARCH_DEADLINE_MS", 3000),
		PostCall: envDurationMillis("POST_CALL_ACK_DEADLINE_MS", 1000),
		Shutdown: envDurationSeconds("SHUTDOWN_GRACE_SECONDS", 30),
	}

	cfg.LLM = LLMConfig{
		Provider: firstNonEmpty(os.Getenv("LLM_PROVIDER"), "anthropic"),
		Fallback: firstNonEmpty(os.Getenv("LLM_FALLBACK_PROVIDER"), "openai"),
		Anthropic: LLMProviderConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			Model:   firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), "claude-3-7-sonnet-latest"),
			BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
		},
		OpenAI: LLMProviderConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   firstNonEmpty(os.Getenv("OPENAI_MODEL"), "gpt-4o-mini"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		Google: LLMProviderConfig{
			APIKey: os.Getenv("GOOGLE_LLM_API_KEY"),
			Model:  firstNonEmpty(os.Getenv("GOOGLE_LLM_MODEL"), "gemini-2.0-flash"),
		},
		CallTimeout:        envDurationSeconds("LLM_CALL_TIMEOUT_SECONDS", 30),
		ChunkTokens:        envInt("CHUNK_TOKENS", 8000),
		ExtractParallelism: envInt("EXTRACT_PARALLELISM", 3),
	}

	cfg.Qdrant = QdrantConfig{
		DSN:        firstNonEmpty(os.Getenv("QDRANT_DSN"), "http://localhost:6334"),
		Collection: firstNonEmpty(os.Getenv("QDRANT_COLLECTION"), "memories"),
		Dimensions: envInt("QDRANT_DIMENSIONS", 1536),
		Metric:     firstNonEmpty(os.Getenv("QDRANT_METRIC"), "cosine"),
	}

	cfg.Postgres = PostgresConfig{DSN: os.Getenv("POSTGRES_DSN")}

	cfg.Redis = RedisConfig{
		Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:        splitCSV(os.Getenv("KAFKA_BROKERS")),
		ShareableTopic: firstNonEmpty(os.Getenv("KAFKA_SHAREABLE_TOPIC"), "memory.shareable"),
		ReinforceTopic: firstNonEmpty(os.Getenv("KAFKA_REINFORCE_TOPIC"), "memory.reinforced"),
	}

	cfg.S3 = S3Config{
		Enabled: envBool("PAYLOAD_S3_ENABLED", false),
		Bucket:  os.Getenv("PAYLOAD_S3_BUCKET"),
		Region:  firstNonEmpty(os.Getenv("PAYLOAD_S3_REGION"), "us-east-1"),
		Prefix:  os.Getenv("PAYLOAD_S3_PREFIX"),
	}

	cfg.ClickHouse = ClickHouseConfig{
		Enabled:  envBool("CLICKHOUSE_ENABLED", false),
		DSN:      os.Getenv("CLICKHOUSE_DSN"),
		Database: firstNonEmpty(os.Getenv("CLICKHOUSE_DATABASE"), "default"),
	}

	cfg.OIDC = OIDCConfig{
		Enabled:      envBool("ADMIN_OIDC_ENABLED", false),
		Issuer:       os.Getenv("ADMIN_OIDC_ISSUER"),
		ClientID:     os.Getenv("ADMIN_OIDC_CLIENT_ID"),
		ClientSecret: os.Getenv("ADMIN_OIDC_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("ADMIN_OIDC_REDIRECT_URL"),
	}

	cfg.Jobs = JobConfig{
		WorkerPoolSize: envInt("WORKER_POOL_SIZE", 10),
		QueueCapacity:  envInt("JOB_QUEUE_CAPACITY", 1000),
		RetryDelays:    []time.Duration{60 * time.Second, 300 * time.Second, 1800 * time.Second},
		MaxAttempts:    4,
	}

	cfg.Defaults = ThresholdConfig{
		ShareThreshold:      envInt("SHARE_THRESHOLD", 8),
		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.85),
		ConflictThreshold:   envFloat("CONFLICT_THRESHOLD", 0.70),
	}

	cfg.Telemetry = TelemetryConfig{
		Enabled:     envBool("OTEL_ENABLED", false),
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    envBool("OTEL_INSECURE", true),
		ServiceName: firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "memory-webhook-dispatcher"),
	}

	if cfg.OrgDefaultsPath != "" {
		if err := applyOrgDefaultsFile(&cfg, cfg.OrgDefaultsPath); err != nil {
			return Config{}, fmt.Errorf("load org defaults: %w", err)
		}
	}

	return cfg, nil
}

// orgDefaultsFile is the on-disk shape of ORG_DEFAULTS_PATH: a single
// `defaults:` block whose set fields replace the process-wide threshold
// defaults. The file holds no per-organization entries. Follows the teacher's YAML
// config-file convention (internal/config uses gopkg.in/yaml for
// ServiceConfig etc.).
type orgDefaultsFile struct {
	Defaults struct {
		ShareThreshold      *int     `yaml:"share_threshold"`
		SimilarityThreshold *float64 `yaml:"similarity_threshold"`
		ConflictThreshold   *float64 `yaml:"conflict_threshold"`
	} `yaml:"defaults"`
}

func applyOrgDefaultsFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f orgDefaultsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	if f.Defaults.ShareThreshold != nil {
		cfg.Defaults.ShareThreshold = *f.Defaults.ShareThreshold
	}
	if f.Defaults.SimilarityThreshold != nil {
		cfg.Defaults.SimilarityThreshold = *f.Defaults.SimilarityThreshold
	}
	if f.Defaults.ConflictThreshold != nil {
		cfg.Defaults.ConflictThreshold = *f.Defaults.ConflictThreshold
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(name string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func envDurationSeconds(name string, defSeconds int) time.Duration {
	return time.Duration(envInt(name, defSeconds)) * time.Second
}

func envDurationMillis(name string, defMillis int) time.Duration {
	return time.Duration(envInt(name, defMillis)) * time.Millisecond
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
