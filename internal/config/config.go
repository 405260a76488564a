// Package config loads the server configuration from YAML with environment
// expansion, defaults and SECBOARD_* overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM providers.
const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure-openai"
	ProviderAnthropic   = "anthropic"
	ProviderMock        = "mock"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
	DriverNone     = "none"
)

// Config is the root configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	LLM           LLMConfig           `yaml:"llm"`
	Agent         AgentConfig         `yaml:"agent"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Threads       ThreadsConfig       `yaml:"threads"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	// BaseURL overrides the OpenAI or Anthropic API endpoint.
	BaseURL string `yaml:"base_url"`
	// Endpoint and APIVersion select the Azure OpenAI resource; Model is the
	// deployment name.
	Endpoint    string   `yaml:"endpoint"`
	APIVersion  string   `yaml:"api_version"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Stream      bool     `yaml:"stream"`
}

type AgentConfig struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
	// MaxHistoryMessages bounds the thread history sent with each call.
	MaxHistoryMessages int `yaml:"max_history_messages"`
}

type PromptConfig struct {
	Instruction string `yaml:"instruction"`
	Task        string `yaml:"task"`
}

type PipelineConfig struct {
	MaxAgentCalls int `yaml:"max_agent_calls"`
	// Prompts overrides step prompts by step name.
	Prompts map[string]PromptConfig `yaml:"prompts"`
	// DisableFiles stops the policy and Terraform steps from storing files.
	DisableFiles bool `yaml:"disable_files"`
}

type ThreadsConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ArtifactsConfig struct {
	Driver       string `yaml:"driver"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UseSSL       bool   `yaml:"use_ssl"`
	CreateBucket bool   `yaml:"create_bucket"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
	Environment  string  `yaml:"environment"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := base()
	applyProviderDefaults(cfg)
	return cfg
}

func base() *Config {
	cfg := &Config{
		Observability: ObservabilityConfig{Metrics: MetricsConfig{Enabled: true}},
		LLM:           LLMConfig{Stream: true},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads path (when non-empty), expands ${VAR} references, applies
// defaults and environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := base()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, err
		}
		applyDefaults(cfg)
	}

	applyEnv(cfg, os.LookupEnv)
	applyProviderDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.Agent.Name == "" {
		cfg.Agent.Name = "cloud-security-agent"
	}
	if cfg.Agent.MaxHistoryMessages == 0 {
		cfg.Agent.MaxHistoryMessages = 20
	}
	if cfg.Threads.Driver == "" {
		cfg.Threads.Driver = DriverMemory
	}
	if cfg.Artifacts.Driver == "" {
		cfg.Artifacts.Driver = DriverMemory
	}
	if cfg.Observability.Metrics.Path == "" {
		cfg.Observability.Metrics.Path = "/metrics"
	}
}

// applyProviderDefaults fills settings that depend on the final provider.
func applyProviderDefaults(cfg *Config) {
	if cfg.LLM.Model == "" {
		switch cfg.LLM.Provider {
		case ProviderAnthropic:
			cfg.LLM.Model = "claude-sonnet-4-20250514"
		case ProviderMock:
			cfg.LLM.Model = "mock"
		default:
			cfg.LLM.Model = "gpt-4o"
		}
	}
	if cfg.LLM.Provider == ProviderAzureOpenAI && cfg.LLM.APIVersion == "" {
		cfg.LLM.APIVersion = "2024-10-21"
	}
}

// applyEnv overlays SECBOARD_* variables. Provider key variables fill an
// empty api_key.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("SECBOARD_SERVER_HOST", &cfg.Server.Host)
	if v, ok := lookup("SECBOARD_SERVER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	str("SECBOARD_LOG_LEVEL", &cfg.Logging.Level)
	str("SECBOARD_LOG_FORMAT", &cfg.Logging.Format)
	str("SECBOARD_LLM_PROVIDER", &cfg.LLM.Provider)
	str("SECBOARD_LLM_MODEL", &cfg.LLM.Model)
	str("SECBOARD_LLM_API_KEY", &cfg.LLM.APIKey)
	str("SECBOARD_LLM_BASE_URL", &cfg.LLM.BaseURL)
	str("SECBOARD_LLM_ENDPOINT", &cfg.LLM.Endpoint)
	str("SECBOARD_THREADS_DRIVER", &cfg.Threads.Driver)
	str("SECBOARD_THREADS_DSN", &cfg.Threads.DSN)
	str("SECBOARD_ARTIFACTS_DRIVER", &cfg.Artifacts.Driver)
	str("SECBOARD_ARTIFACTS_ACCESS_KEY", &cfg.Artifacts.AccessKey)
	str("SECBOARD_ARTIFACTS_SECRET_KEY", &cfg.Artifacts.SecretKey)
	str("SECBOARD_TRACING_ENDPOINT", &cfg.Observability.Tracing.Endpoint)

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case ProviderOpenAI:
			str("OPENAI_API_KEY", &cfg.LLM.APIKey)
		case ProviderAzureOpenAI:
			str("AZURE_OPENAI_API_KEY", &cfg.LLM.APIKey)
		case ProviderAnthropic:
			str("ANTHROPIC_API_KEY", &cfg.LLM.APIKey)
		}
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var issues []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
	case ProviderAzureOpenAI:
		if c.LLM.Endpoint == "" {
			issues = append(issues, "llm.endpoint is required for azure-openai")
		}
	default:
		issues = append(issues, fmt.Sprintf("llm.provider %q is not supported", c.LLM.Provider))
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		issues = append(issues, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxTokens < 0 {
		issues = append(issues, "llm.max_tokens must not be negative")
	}

	if c.Pipeline.MaxAgentCalls < 0 {
		issues = append(issues, "pipeline.max_agent_calls must not be negative")
	}

	switch c.Threads.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Threads.DSN == "" {
			issues = append(issues, "threads.dsn is required for "+c.Threads.Driver)
		}
	default:
		issues = append(issues, fmt.Sprintf("threads.driver %q is not supported", c.Threads.Driver))
	}

	switch c.Artifacts.Driver {
	case DriverMemory, DriverNone:
	case DriverS3:
		if c.Artifacts.Endpoint == "" || c.Artifacts.Bucket == "" {
			issues = append(issues, "artifacts.endpoint and artifacts.bucket are required for s3")
		}
	default:
		issues = append(issues, fmt.Sprintf("artifacts.driver %q is not supported", c.Artifacts.Driver))
	}

	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		issues = append(issues, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(issues, "; "))
	}

	return nil
}
