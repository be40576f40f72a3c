package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the newsletter system
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Email      EmailConfig      `mapstructure:"email"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
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

// LLMConfig contains LLM provider settings for the writing agents
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"` // openai
	APIKey          string        `mapstructure:"api_key"`
	CompletionModel string        `mapstructure:"completion_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// AgentsConfig contains agent-specific settings
type AgentsConfig struct {
	AgentTimeout  time.Duration `mapstructure:"agent_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	DefaultTopics []string      `mapstructure:"default_topics"`
	DaysBack      int           `mapstructure:"days_back"`
	MaxResults    int           `mapstructure:"max_results"`
}

// SourcesConfig contains article source configurations
type SourcesConfig struct {
	NewsAPI NewsAPIConfig `mapstructure:"newsapi"`
}

// NewsAPIConfig contains NewsAPI settings
type NewsAPIConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Endpoint   string        `mapstructure:"endpoint"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// EmailConfig contains delivery sender settings
type EmailConfig struct {
	APIKey      string `mapstructure:"api_key"`
	FromName    string `mapstructure:"from_name"`
	FromAddress string `mapstructure:"from_address"`
}

func (e EmailConfig) Validate() error {
	if strings.TrimSpace(e.APIKey) != "" && strings.TrimSpace(e.FromAddress) == "" {
		return fmt.Errorf("email.from_address required when email.api_key is set")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns the host:port address of the Redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig contains Postgres connection settings
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
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
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

// SchedulerConfig contains dispatch loop settings
type SchedulerConfig struct {
	DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
	RefreshInterval  time.Duration `mapstructure:"refresh_interval"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
	StaleJobAge      time.Duration `mapstructure:"stale_job_age"`
}

// Normalize applies the default tick cadences when values are unset.
func (s SchedulerConfig) Normalize() SchedulerConfig {
	if s.DispatchInterval <= 0 {
		s.DispatchInterval = time.Minute
	}
	if s.RefreshInterval <= 0 {
		s.RefreshInterval = time.Hour
	}
	if s.CleanupInterval <= 0 {
		s.CleanupInterval = 24 * time.Hour
	}
	if s.StaleJobAge <= 0 {
		s.StaleJobAge = 30 * 24 * time.Hour
	}
	return s
}

// MonitoringConfig contains health monitor settings
type MonitoringConfig struct {
	HealthSweepInterval time.Duration `mapstructure:"health_sweep_interval"`
	ErrorSweepInterval  time.Duration `mapstructure:"error_sweep_interval"`
	ErrorRetention      time.Duration `mapstructure:"error_retention"`
	MaxErrorHistory     int           `mapstructure:"max_error_history"`
}

// Normalize applies the default sweep cadences when values are unset.
func (m MonitoringConfig) Normalize() MonitoringConfig {
	if m.HealthSweepInterval <= 0 {
		m.HealthSweepInterval = 5 * time.Minute
	}
	if m.ErrorSweepInterval <= 0 {
		m.ErrorSweepInterval = 24 * time.Hour
	}
	if m.ErrorRetention <= 0 {
		m.ErrorRetention = 7 * 24 * time.Hour
	}
	if m.MaxErrorHistory <= 0 {
		m.MaxErrorHistory = 1000
	}
	return m
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":10001")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.timeout", 30*time.Second)
	viper.SetDefault("agents.agent_timeout", 60*time.Second)
	viper.SetDefault("agents.max_retries", 3)
	viper.SetDefault("agents.days_back", 3)
	viper.SetDefault("agents.max_results", 15)
	viper.SetDefault("sources.newsapi.endpoint", "https://newsapi.org/v2/everything")
	viper.SetDefault("sources.newsapi.max_results", 50)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("NEWSLETTER")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Scheduler = config.Scheduler.Normalize()
	config.Monitoring = config.Monitoring.Normalize()

	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Email.Validate(); err != nil {
		panic(err)
	}
	return &config
}
