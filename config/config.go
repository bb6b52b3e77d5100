package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the glassmind service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Search    SearchConfig    `mapstructure:"search"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig selects and configures the language-model provider
type LLMConfig struct {
	Provider string       `mapstructure:"provider"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig contains OpenAI API settings
type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	CompletionModel     string        `mapstructure:"completion_model"`
	RewriteModel        string        `mapstructure:"rewrite_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	MaxCompletionTokens int           `mapstructure:"max_completion_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// AgentConfig bounds a single run of the research pipeline
type AgentConfig struct {
	MaxSearchQueries int           `mapstructure:"max_search_queries"`
	ResultsPerQuery  int           `mapstructure:"results_per_query"`
	PageCandidates   int           `mapstructure:"page_candidates"`
	MaxPageFetches   int           `mapstructure:"max_page_fetches"`
	MaxThoughts      int           `mapstructure:"max_thoughts"`
	TopK             int           `mapstructure:"top_k"`
	MaxPerDomain     int           `mapstructure:"max_per_domain"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider string        `mapstructure:"provider"` // serper or brave
	APIKey   string        `mapstructure:"api_key"`
	Delay    time.Duration `mapstructure:"delay"` // minimum interval between searches
}

// FetchConfig contains page fetch settings
type FetchConfig struct {
	Backend     string        `mapstructure:"backend"` // chromedp or http
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxChars    int           `mapstructure:"max_chars"`
	DomainDelay time.Duration `mapstructure:"domain_delay"`
}

// MemoryConfig controls the chunk store and its optional caches
type MemoryConfig struct {
	Cache         string         `mapstructure:"cache"` // none, redis or postgres
	Hybrid        bool           `mapstructure:"hybrid"`
	ChunkChars    int            `mapstructure:"chunk_chars"`
	ChunkOverlap  int            `mapstructure:"chunk_overlap"`
	MinChunkChars int            `mapstructure:"min_chunk_chars"`
	Retention     time.Duration  `mapstructure:"retention"`
	PruneSchedule string         `mapstructure:"prune_schedule"` // cron expression
	Redis         RedisConfig    `mapstructure:"redis"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("memory.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("memory.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("memory.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("memory.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains metrics settings
type TelemetryConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port must be >= 0 when telemetry is enabled")
	}
	return nil
}

func (m MemoryConfig) Validate() error {
	switch m.Cache {
	case "", "none":
		return nil
	case "redis":
		return m.Redis.Validate()
	case "postgres":
		return m.Postgres.Validate()
	default:
		return fmt.Errorf("memory.cache must be one of none, redis, postgres")
	}
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "serper", "brave":
	default:
		return fmt.Errorf("search.provider must be serper or brave")
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return fmt.Errorf("search.api_key required")
	}
	return nil
}

func (f FetchConfig) Validate() error {
	switch f.Backend {
	case "chromedp", "http":
		return nil
	default:
		return fmt.Errorf("fetch.backend must be chromedp or http")
	}
}

func setDefaults() {
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.openai.completion_model", "o4-mini")
	viper.SetDefault("llm.openai.rewrite_model", "gpt-4.1-nano")
	viper.SetDefault("llm.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.openai.max_completion_tokens", 2000)
	viper.SetDefault("llm.openai.timeout", 30*time.Second)
	viper.SetDefault("agent.max_search_queries", 5)
	viper.SetDefault("agent.results_per_query", 5)
	viper.SetDefault("agent.page_candidates", 3)
	viper.SetDefault("agent.max_page_fetches", 10)
	viper.SetDefault("agent.max_thoughts", 50)
	viper.SetDefault("agent.top_k", 6)
	viper.SetDefault("agent.max_per_domain", 2)
	viper.SetDefault("agent.heartbeat", time.Second)
	viper.SetDefault("search.provider", "serper")
	viper.SetDefault("search.delay", 2*time.Second)
	viper.SetDefault("fetch.backend", "http")
	viper.SetDefault("fetch.timeout", 15*time.Second)
	viper.SetDefault("fetch.max_chars", 20000)
	viper.SetDefault("fetch.domain_delay", time.Second)
	viper.SetDefault("memory.cache", "none")
	viper.SetDefault("memory.chunk_chars", 1000)
	viper.SetDefault("memory.chunk_overlap", 200)
	viper.SetDefault("memory.min_chunk_chars", 50)
	viper.SetDefault("memory.retention", 24*time.Hour)
	viper.SetDefault("memory.prune_schedule", "0 * * * *")
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.metrics_port", 0)
}

// LoadConfig loads config from file, environment, and defaults. A missing
// config file is not an error; GLASSMIND_* env vars always apply.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("GLASSMIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Telemetry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Memory.Validate(); err != nil {
		panic(err)
	}
	if err := config.Fetch.Validate(); err != nil {
		panic(err)
	}
	return &config
}
