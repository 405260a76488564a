package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/secboard/agent"
	"github.com/hupe1980/secboard/artifact"
	"github.com/hupe1980/secboard/artifact/s3"
	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/internal/config"
	"github.com/hupe1980/secboard/internal/observability"
	"github.com/hupe1980/secboard/internal/server"
	"github.com/hupe1980/secboard/logging"
	"github.com/hupe1980/secboard/model"
	"github.com/hupe1980/secboard/model/anthropic"
	"github.com/hupe1980/secboard/model/openai"
	"github.com/hupe1980/secboard/onboarding"
	"github.com/hupe1980/secboard/runner"
	"github.com/hupe1980/secboard/thread"
)

// app holds the wired server and the resources to release on shutdown.
type app struct {
	cfg     *config.Config
	logger  *logging.StructuredLogger
	server  *server.Server
	closers []func(context.Context) error
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	a.logger.Info("starting secboard",
		"version", version,
		"addr", cfg.Server.Addr(),
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"threads", cfg.Threads.Driver,
		"artifacts", cfg.Artifacts.Driver,
	)

	return a.server.Run(ctx, cfg.Server.Addr(), cfg.Server.ReadHeaderTimeout, cfg.Server.ShutdownTimeout)
}

// buildApp wires stores, model, pipeline, runner and server from cfg.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		AddSource: cfg.Logging.AddSource,
		Component: "secboard",
	})

	a := &app{cfg: cfg, logger: logger}
	var checks []server.Check

	threads, err := newThreadStore(cfg.Threads)
	if err != nil {
		return nil, err
	}
	if c, ok := threads.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}
	if p, ok := threads.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, server.Check{Name: "threads", Check: p.Ping})
	}

	artifacts, err := newArtifactStore(ctx, cfg.Artifacts)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	if p, ok := artifacts.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, server.Check{Name: "artifacts", Check: p.Ping})
	}

	llm, err := newModel(cfg.LLM)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	cloudAgent := agent.NewModelAgent(cfg.Agent.Name, llm, func(o *agent.ModelAgentOptions) {
		if cfg.Agent.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(cfg.Agent.Instruction)
		}
		o.EnableStreaming = cfg.LLM.Stream
		o.MaxHistoryMessages = cfg.Agent.MaxHistoryMessages
		o.Logger = logger.WithComponent("agent")
	})

	reg, err := agent.NewRegistry(cloudAgent)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	def, err := onboarding.Build(reg, func(o *onboarding.Options) {
		o.AgentName = cfg.Agent.Name
		o.DisableFiles = cfg.Pipeline.DisableFiles
		if len(cfg.Pipeline.Prompts) > 0 {
			o.Prompts = make(map[string]onboarding.Prompt, len(cfg.Pipeline.Prompts))
			for step, p := range cfg.Pipeline.Prompts {
				o.Prompts[step] = onboarding.Prompt{Instruction: p.Instruction, Task: p.Task}
			}
		}
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	var metrics *observability.Metrics
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "secboard",
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	a.closers = append(a.closers, shutdownTracer)

	r := runner.New(def, func(o *runner.Options) {
		o.ThreadStore = threads
		o.ArtifactStore = artifacts
		o.MaxAgentCalls = cfg.Pipeline.MaxAgentCalls
		o.Logger = logger.WithComponent("runner")
		if metrics != nil {
			o.Observer = metrics
		}
	})

	a.server = server.New(r, func(o *server.Options) {
		o.Logger = logger.WithComponent("server")
		o.Metrics = metrics
		o.MetricsPath = cfg.Observability.Metrics.Path
		o.Readiness = checks
		o.Tracer = tracer
	})

	return a, nil
}

func newThreadStore(cfg config.ThreadsConfig) (core.ThreadStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return thread.NewInMemoryStore(), nil
	case config.DriverSQLite:
		return thread.NewSQLStore(thread.DriverSQLite, cfg.DSN)
	case config.DriverPostgres:
		return thread.NewSQLStore(thread.DriverPostgres, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported thread driver %q", cfg.Driver)
	}
}

// newArtifactStore returns nil for the "none" driver, which turns file output off.
func newArtifactStore(ctx context.Context, cfg config.ArtifactsConfig) (core.ArtifactStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return artifact.NewInMemoryStore(), nil
	case config.DriverNone:
		return nil, nil
	case config.DriverS3:
		return s3.New(ctx, s3.Config{
			Endpoint:     cfg.Endpoint,
			Region:       cfg.Region,
			Bucket:       cfg.Bucket,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			UseSSL:       cfg.UseSSL,
			Prefix:       cfg.Prefix,
			CreateBucket: cfg.CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unsupported artifact driver %q", cfg.Driver)
	}
}

func newModel(cfg config.LLMConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		var clientOpts []openaiopt.RequestOption
		if cfg.APIKey != "" {
			clientOpts = append(clientOpts, openaiopt.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, openaiopt.WithBaseURL(cfg.BaseURL))
		}
		return openai.NewModel(clientOpts, openAIOptions(cfg, true)), nil
	case config.ProviderAzureOpenAI:
		return openai.NewAzureModel(cfg.Endpoint, cfg.APIVersion, cfg.APIKey, cfg.Model, openAIOptions(cfg, false)), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model)
			o.APIKey = cfg.APIKey
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			if cfg.BaseURL != "" {
				o.ClientOptions = append(o.ClientOptions, anthropicopt.WithBaseURL(cfg.BaseURL))
			}
		}), nil
	case config.ProviderMock:
		return newDemoModel(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func openAIOptions(cfg config.LLMConfig, setModel bool) func(o *openai.Options) {
	return func(o *openai.Options) {
		if setModel {
			o.Model = cfg.Model
		}
		if cfg.Temperature != nil {
			o.Temperature = *cfg.Temperature
		}
		if cfg.MaxTokens > 0 {
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
		}
	}
}

// newDemoModel answers every step offline with canned content, so the whole
// pipeline including file output can be exercised without an API key.
func newDemoModel(name string) *model.MockModel {
	m := model.NewMockModel(name)
	m.AddResponse("Build an Azure Policy", demoPolicy)
	m.AddResponse("Write Terraform", demoTerraform)
	m.SetFallback(func(req model.Request) string {
		return "- Enforce encryption at rest with customer managed keys\n- Disable public network access\n- Send diagnostic logs to Log Analytics\n"
	})
	return m
}

const demoPolicy = "```json\n" + `{
  "properties": {
    "displayName": "Deny public network access",
    "mode": "All",
    "policyRule": {
      "if": {"field": "Microsoft.Storage/storageAccounts/publicNetworkAccess", "notEquals": "Disabled"},
      "then": {"effect": "deny"}
    }
  }
}` + "\n```\n"

const demoTerraform = "```hcl\n" + `resource "azurerm_policy_definition" "deny_public_access" {
  name         = "deny-public-network-access"
  policy_type  = "Custom"
  mode         = "All"
  display_name = "Deny public network access"
  policy_rule  = file("${path.module}/azure-policy.json")
}` + "\n```\n"
