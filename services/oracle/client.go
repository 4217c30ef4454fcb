package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/action-gate/config"
	"github.com/upb/action-gate/internal/observability"
	"github.com/upb/action-gate/services"
	"github.com/upb/action-gate/services/gating"
	"github.com/upb/action-gate/services/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Config holds decision oracle client configuration
type Config struct {
	Model          string
	Location       *time.Location
	Timeout        time.Duration
	MaxConcurrency int64
	// MaxTokens caps the verdict length; a one-word answer needs very few
	MaxTokens int
}

// DefaultConfig returns the default client configuration
func DefaultConfig(model string) Config {
	return Config{
		Model:          model,
		Location:       time.UTC,
		Timeout:        30 * time.Second,
		MaxConcurrency: 8,
		MaxTokens:      8,
	}
}

// Client asks a chat-completion endpoint whether a set of rules holds for a
// gating context. It does not retry failed calls.
type Client struct {
	llm    llm.Completer
	config Config
	sem    *semaphore.Weighted
	logger *zap.Logger
}

var _ gating.DecisionOracle = (*Client)(nil)

// NewClient creates a decision oracle client over completer
func NewClient(completer llm.Completer, cfg Config, logger *zap.Logger) *Client {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Client{
		llm:    completer,
		config: cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrency),
		logger: logger,
	}
}

// NewFromConfig builds a client backed by an OpenAI-compatible endpoint
func NewFromConfig(cfg config.OracleConfig, logger *zap.Logger) *Client {
	ocfg := DefaultConfig(cfg.Model)
	ocfg.Location = cfg.OracleLocation()
	ocfg.Timeout = cfg.Timeout
	ocfg.MaxConcurrency = int64(cfg.MaxConcurrency)

	completer := llm.NewOpenAI(llm.OpenAIConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		HTTPClient: observability.InstrumentClient(&http.Client{}),
	})
	return NewClient(completer, ocfg, logger)
}

// Judge reports whether every rule in ruleText holds for payload at asOf.
// Transport failures return an OracleUnavailable error; ambiguous or
// suspicious input yields false.
func (c *Client) Judge(ctx context.Context, payload gating.GatingContext, ruleText string, asOf time.Time) (bool, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return false, services.WrapOracle("oracle capacity wait cancelled", err)
	}
	defer c.sem.Release(1)

	prompt, err := BuildPrompt(payload, ruleText, asOf, c.config.Location)
	if err != nil {
		return false, services.WrapOracle("failed to build oracle prompt", err)
	}

	if err := c.guard(payload); err != nil {
		c.logger.Warn("gating context rejected before oracle call", zap.Error(err))
		return false, nil
	}

	start := time.Now()
	resp, err := c.llm.ChatCompletion(ctx, &llm.ChatRequest{
		Model: c.config.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt.System},
			{Role: llm.RoleUser, Content: prompt.User},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: 0,
	})
	if err != nil {
		return false, services.WrapOracle("decision oracle call failed", err)
	}

	answer := resp.Content
	verdict := ParseVerdict(answer)
	if verdict.Ambiguous {
		c.logger.Warn("ambiguous oracle verdict, denying",
			zap.String("model", c.config.Model),
			zap.String("answer", truncate(answer, 200)))
	}

	c.logger.Debug("oracle verdict",
		zap.String("model", c.config.Model),
		zap.Bool("allowed", verdict.Allowed),
		zap.Duration("latency", time.Since(start)))

	return verdict.Allowed, nil
}

func (c *Client) guard(payload gating.GatingContext) error {
	data, err := marshalContext(payload, "")
	if err != nil {
		return fmt.Errorf("failed to serialize gating context: %w", err)
	}
	return GuardAgainstInjection(string(data))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
