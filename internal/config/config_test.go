package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "cloud-security-agent", cfg.Agent.Name)
	assert.Equal(t, DriverMemory, cfg.Threads.Driver)
	assert.Equal(t, DriverMemory, cfg.Artifacts.Driver)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.True(t, cfg.LLM.Stream)
	assert.NoError(t, cfg.Validate())
}

func TestLoadValidConfig(t *testing.T) {
	t.Setenv("TEST_AZURE_KEY", "secret")

	path := writeConfig(t, `
server:
  port: 9000
  shutdown_timeout: 30s
logging:
  level: debug
  format: text
llm:
  provider: azure-openai
  model: gpt-4o-deployment
  endpoint: https://example.openai.azure.com
  api_key: ${TEST_AZURE_KEY}
  temperature: 0.2
pipeline:
  max_agent_calls: 10
  prompts:
    WriteTerraform:
      task: "Terraform for {{.cloud_service_name}}"
threads:
  driver: sqlite
  dsn: /tmp/threads.db
artifacts:
  driver: none
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "secret", cfg.LLM.APIKey)
	assert.Equal(t, "2024-10-21", cfg.LLM.APIVersion)
	require.NotNil(t, cfg.LLM.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 10, cfg.Pipeline.MaxAgentCalls)
	assert.Equal(t, "Terraform for {{.cloud_service_name}}", cfg.Pipeline.Prompts["WriteTerraform"].Task)
	assert.Equal(t, DriverSQLite, cfg.Threads.Driver)
	assert.Equal(t, DriverNone, cfg.Artifacts.Driver)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  extra: true
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: azure-openai
threads:
  driver: postgres
artifacts:
  driver: s3
observability:
  tracing:
    sampling_rate: 2
`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "llm.endpoint")
	assert.Contains(t, msg, "threads.dsn")
	assert.Contains(t, msg, "artifacts.endpoint")
	assert.Contains(t, msg, "sampling_rate")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SECBOARD_SERVER_PORT":  "9999",
		"SECBOARD_LLM_PROVIDER": ProviderAnthropic,
		"ANTHROPIC_API_KEY":     "sk-ant",
		"OPENAI_API_KEY":        "sk-openai",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	applyEnv(cfg, lookup)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("SECBOARD_LLM_PROVIDER", ProviderMock)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ProviderMock, cfg.LLM.Provider)
}
