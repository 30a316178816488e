package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string  `env:"APP_ENV" envDefault:"local"`
	PostgresDSN    string  `env:"POSTGRES_DSN,required"`
	BotToken       string  `env:"BOT_TOKEN,required"`
	OperatorChatID int64   `env:"OPERATOR_CHAT_ID,required"`
	OperatorIDs    []int64 `env:"OPERATOR_IDS" envSeparator:","`
	HealthPort     int     `env:"HEALTH_PORT" envDefault:"8080"`

	// LLM and embeddings
	LLMAPIKey           string  `env:"LLM_API_KEY,required"`
	LLMModel            string  `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel      string  `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions int     `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	RateLimitRPS        int     `env:"RATE_LIMIT_RPS" envDefault:"2"`
	LLMCircuitThreshold int     `env:"LLM_CIRCUIT_THRESHOLD" envDefault:"5"`
	LLMTemperature      float32 `env:"LLM_TEMPERATURE" envDefault:"0.2"`

	// Retrieval
	RetrievalTopK      int           `env:"RETRIEVAL_TOP_K" envDefault:"10"`
	RetrievalPoolCap   int           `env:"RETRIEVAL_POOL_CAP" envDefault:"15"`
	HyDEEnabled        bool          `env:"HYDE_ENABLED" envDefault:"true"`
	AspectQueriesMax   int           `env:"ASPECT_QUERIES_MAX" envDefault:"4"`
	QueryCacheTTL      time.Duration `env:"QUERY_CACHE_TTL" envDefault:"10m"`
	QueryCacheCapacity int           `env:"QUERY_CACHE_CAPACITY" envDefault:"512"`

	// Rerank and selection
	RerankMode        string        `env:"RERANK_MODE" envDefault:"llm"` // "llm" or "service"
	RerankServiceURL  string        `env:"RERANK_SERVICE_URL"`
	RerankTimeout     time.Duration `env:"RERANK_TIMEOUT" envDefault:"15s"`
	SelectionMax      int           `env:"SELECTION_MAX" envDefault:"5"`
	ScoreFloor        float32       `env:"SCORE_FLOOR" envDefault:"0.25"`
	DuplicateOverlap  float32       `env:"DUPLICATE_OVERLAP" envDefault:"0.8"`
	DiversityGroupCap int           `env:"DIVERSITY_GROUP_CAP" envDefault:"2"`

	// Dialogue
	MaxClarificationRounds int           `env:"MAX_CLARIFICATION_ROUNDS" envDefault:"2"`
	ContextTTL             time.Duration `env:"CONTEXT_TTL" envDefault:"30m"`
	ContextCapacity        int           `env:"CONTEXT_CAPACITY" envDefault:"1000"`
	HistoryMaxTurns        int           `env:"HISTORY_MAX_TURNS" envDefault:"12"`

	// Pipeline
	StageTimeout time.Duration `env:"STAGE_TIMEOUT" envDefault:"30s"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}
