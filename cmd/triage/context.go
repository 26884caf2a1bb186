package main

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"triage/internal/catalog"
	"triage/internal/config"
	"triage/internal/history"
	"triage/internal/identity"
	"triage/internal/logging"
	"triage/internal/metrics"
	"triage/internal/request"
	"triage/internal/services/llm"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// services bundles the collaborators a command needs. Close releases the
// database handle.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *history.Store
	session identity.Session
	catalog *catalog.Catalog
	metrics *metrics.Recorder
	client  *llm.Client
}

// openServices builds the shared service set. The LLM client is only
// constructed (and the API key only required) when needLLM is set.
func (c *commandContext) openServices(needLLM bool) (*services, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewForPaths(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir, "triage.log")
	if err != nil {
		return nil, err
	}

	store, err := history.Open(cfg)
	if err != nil {
		return nil, err
	}

	session, err := identity.NewProvider(cfg.Paths.DataDir, logger).Session()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	svc := &services{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		session: session,
		catalog: cat,
		metrics: metrics.New(),
	}

	if needLLM {
		if err := cfg.RequireLLMKey(); err != nil {
			_ = store.Close()
			return nil, err
		}
		svc.client = newAssistant(cfg, logger, svc.metrics)
	}
	return svc, nil
}

func (s *services) Close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

func newAssistant(cfg *config.Config, logger *slog.Logger, rec *metrics.Recorder) *llm.Client {
	execOpts := []request.Option{
		request.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout()}),
		request.WithLogger(logger),
	}
	if rec != nil {
		execOpts = append(execOpts, request.WithObserver(rec))
	}
	exec := request.NewExecutor(execOpts...)
	return llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		ChatModel:      cfg.LLM.ChatModel,
		PredictModel:   cfg.LLM.PredictModel,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	},
		llm.WithExecutor(exec),
		llm.WithPolicy(retryPolicy(cfg)),
		llm.WithLogger(logger),
	)
}

func retryPolicy(cfg *config.Config) request.Policy {
	return request.Policy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialDelay:      time.Duration(cfg.Retry.InitialDelayMS) * time.Millisecond,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		MaxDelay:          time.Duration(cfg.Retry.MaxDelayMS) * time.Millisecond,
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
