package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the halo service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Replica   ReplicaConfig   `mapstructure:"replica"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains server-wide settings.
type GeneralConfig struct {
	Listen     string `mapstructure:"listen"`
	Debug      bool   `mapstructure:"debug"`
	LogLevel   string `mapstructure:"log_level"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	CronSecret string `mapstructure:"cron_secret"`
}

func (g GeneralConfig) Validate() error {
	if strings.TrimSpace(g.Listen) == "" {
		return fmt.Errorf("general.listen required")
	}
	return nil
}

// DatabasesConfig groups the authoritative store and the scheduler lock store.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("databases.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("databases.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("databases.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection string, preferring an explicit url.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%s", p.Host, p.Port),
		Path:     p.DBName,
		RawQuery: "sslmode=" + sslmode,
	}
	return u.String()
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// ProvidersConfig groups external provider credentials.
type ProvidersConfig struct {
	Firecrawl FirecrawlConfig `mapstructure:"firecrawl"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// FirecrawlConfig configures the hosted search/scrape provider. An empty
// api_key switches the scraper to the local chromedp provider, which cannot
// serve search or map requests.
type FirecrawlConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig configures the OpenAI-compatible completion/embedding endpoint.
type LLMConfig struct {
	APIKey  string           `mapstructure:"api_key"`
	BaseURL string           `mapstructure:"base_url"`
	Timeout time.Duration    `mapstructure:"timeout"`
	Routing LLMRoutingConfig `mapstructure:"routing"`
}

// LLMRoutingConfig picks a model per task.
type LLMRoutingConfig struct {
	Synthesis string `mapstructure:"synthesis"`
	Tagging   string `mapstructure:"tagging"`
	Vision    string `mapstructure:"vision"`
	Embedding string `mapstructure:"embedding"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.Routing.Synthesis) == "" {
		return fmt.Errorf("providers.llm.routing.synthesis required")
	}
	if strings.TrimSpace(l.Routing.Embedding) == "" {
		return fmt.Errorf("providers.llm.routing.embedding required")
	}
	return nil
}

// AgentConfig contains pipeline stage limits.
type AgentConfig struct {
	SeedLimit          int           `mapstructure:"seed_limit"`
	ExpandSeedCap      int           `mapstructure:"expand_seed_cap"`
	ExpandResultCap    int           `mapstructure:"expand_result_cap"`
	MonitorFindingsCap int           `mapstructure:"monitor_findings_cap"`
	TagBatchSize       int           `mapstructure:"tag_batch_size"`
	VisionSeedCap      int           `mapstructure:"vision_seed_cap"`
	PolitenessDelay    time.Duration `mapstructure:"politeness_delay"`
	MonitorSchedule    string        `mapstructure:"monitor_schedule"`
}

// ReplicaConfig contains local replication settings.
type ReplicaConfig struct {
	Dir          string        `mapstructure:"dir"`
	BatchSize    int           `mapstructure:"batch_size"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults() {
	viper.SetDefault("general.listen", ":10001")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("databases.postgres.sslmode", "disable")
	viper.SetDefault("databases.postgres.timeout", "10s")
	viper.SetDefault("databases.redis.host", "127.0.0.1")
	viper.SetDefault("databases.redis.port", "6379")
	viper.SetDefault("providers.firecrawl.base_url", "https://api.firecrawl.dev")
	viper.SetDefault("providers.firecrawl.timeout", "45s")
	viper.SetDefault("providers.llm.timeout", "120s")
	viper.SetDefault("providers.llm.routing.synthesis", "deepseek-ai/DeepSeek-R1-0528")
	viper.SetDefault("providers.llm.routing.tagging", "deepseek-ai/DeepSeek-R1-0528")
	viper.SetDefault("providers.llm.routing.vision", "Qwen/Qwen2.5-VL-72B-Instruct")
	viper.SetDefault("providers.llm.routing.embedding", "BAAI/bge-en-icl")
	viper.SetDefault("agent.seed_limit", 3)
	viper.SetDefault("agent.expand_seed_cap", 2)
	viper.SetDefault("agent.expand_result_cap", 3)
	viper.SetDefault("agent.monitor_findings_cap", 40)
	viper.SetDefault("agent.tag_batch_size", 10)
	viper.SetDefault("agent.vision_seed_cap", 3)
	viper.SetDefault("agent.politeness_delay", "500ms")
	viper.SetDefault("agent.monitor_schedule", "@hourly")
	viper.SetDefault("replica.batch_size", 20)
	viper.SetDefault("replica.poll_interval", "5s")
	viper.SetDefault("telemetry.enabled", true)
}

// Load reads the config file (halo.yaml) plus HALO_* env overrides.
func Load(path string) (*Config, error) {
	viper.Reset()
	viper.SetConfigName("halo")
	viper.SetConfigType("yaml")
	setDefaults()

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HALO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Env-only deployments run without a file.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.General.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Databases.Postgres.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Providers.LLM.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
