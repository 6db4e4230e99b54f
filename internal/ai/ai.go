// Package ai drafts phishing simulation templates and explains their red
// flags using a generative text provider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/phishdrill/internal/config"
	"github.com/foxzi/phishdrill/internal/metrics"
)

var (
	// ErrNotConfigured is returned when no provider is set up
	ErrNotConfigured = errors.New("AI provider not configured")
	// ErrUpstream wraps provider failures
	ErrUpstream = errors.New("AI provider request failed")
)

// DefaultRedFlags is returned by Analyze whenever the provider cannot help
var DefaultRedFlags = []string{
	"Review the sender email address carefully.",
	"Be cautious of urgent requests.",
	"Don't click links from unknown sources.",
}

// Request is a single prompt sent to a provider
type Request struct {
	System string
	Prompt string
	// JSON asks the provider to constrain output to a JSON object
	JSON bool
}

// Completer turns a prompt into raw model text
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}

// GeneratedTemplate is a drafted email. It is not persisted.
type GeneratedTemplate struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Adapter wraps a Completer with prompts, parsing and fallbacks
type Adapter struct {
	completer Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewAdapter creates an adapter. A nil completer leaves it unconfigured.
func NewAdapter(completer Completer, timeout time.Duration, logger *slog.Logger) *Adapter {
	return &Adapter{
		completer: completer,
		timeout:   timeout,
		logger:    logger.With("component", "ai"),
	}
}

// NewCompleter builds the provider selected in cfg. It returns nil for provider "none".
func NewCompleter(ctx context.Context, cfg config.AIConfig, logger *slog.Logger) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := NewGeminiCompleter(ctx, cfg.APIKey, cfg.Models, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.ProviderGroq:
		return NewGroqCompleter(cfg.BaseURL, cfg.APIKey, cfg.Models, cfg.Timeout), nil
	case config.ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}

// Ready reports whether a provider is configured
func (a *Adapter) Ready() bool {
	return a != nil && a.completer != nil
}

// Provider returns the provider name, or "none"
func (a *Adapter) Provider() string {
	if !a.Ready() {
		return config.ProviderNone
	}
	return a.completer.Name()
}

// complete calls the provider bounded by the adapter timeout
func (a *Adapter) complete(ctx context.Context, req Request) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	return a.completer.Complete(ctx, req)
}

// Generate drafts a simulated phishing email. Malformed model output still
// yields a usable draft; errors mean the provider is missing or failed.
func (a *Adapter) Generate(ctx context.Context, templateType, senderName, scenario string) (*GeneratedTemplate, error) {
	if !a.Ready() {
		metrics.ObserveAIRequest("generate", "unconfigured", 0)
		return nil, ErrNotConfigured
	}

	logger := a.logger.With("request_id", uuid.NewString(), "operation", "generate", "provider", a.Provider())
	logger.Info("generating template", "type", templateType)

	start := time.Now()
	raw, err := a.complete(ctx, Request{
		System: generateSystem,
		Prompt: generatePrompt(templateType, senderName, scenario),
	})
	if err != nil {
		metrics.ObserveAIRequest("generate", "error", time.Since(start).Seconds())
		logger.Error("provider request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	draft, strict := parseTemplate(templateType, raw)
	outcome := "success"
	if !strict {
		outcome = "fallback"
		logger.Warn("response was not a JSON object, returning raw text", "response_len", len(raw))
	}
	metrics.ObserveAIRequest("generate", outcome, time.Since(start).Seconds())
	logger.Debug("template generated", "duration", time.Since(start), "subject", draft.Subject)

	return &draft, nil
}

// Analyze lists the red flags of an email. It never fails: any problem
// yields DefaultRedFlags.
func (a *Adapter) Analyze(ctx context.Context, subject, body string) []string {
	if !a.Ready() {
		metrics.ObserveAIRequest("analyze", "unconfigured", 0)
		return fallbackFlags()
	}

	logger := a.logger.With("request_id", uuid.NewString(), "operation", "analyze", "provider", a.Provider())

	start := time.Now()
	raw, err := a.complete(ctx, Request{
		System: analyzeSystem,
		Prompt: analyzePrompt(subject, body),
		JSON:   true,
	})
	if err != nil {
		metrics.ObserveAIRequest("analyze", "error", time.Since(start).Seconds())
		logger.Error("analysis failed", "error", err)
		return fallbackFlags()
	}

	flags, ok := parseAnalysis(raw)
	if !ok {
		metrics.ObserveAIRequest("analyze", "fallback", time.Since(start).Seconds())
		logger.Warn("analysis response unusable, returning defaults", "response_len", len(raw))
		return fallbackFlags()
	}

	metrics.ObserveAIRequest("analyze", "success", time.Since(start).Seconds())
	logger.Debug("analysis complete", "duration", time.Since(start), "flags", len(flags))
	return flags
}

// fallbackFlags returns a copy so callers cannot modify DefaultRedFlags
func fallbackFlags() []string {
	return append([]string(nil), DefaultRedFlags...)
}
