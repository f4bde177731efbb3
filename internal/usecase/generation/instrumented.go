package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/metrics"
)

// InstrumentedGenerator wraps a Generator with metrics and logging.
type InstrumentedGenerator struct {
	inner  domain.Generator
	model  string
	logger *zap.Logger
}

// NewInstrumentedGenerator wraps a generator with observability.
func NewInstrumentedGenerator(inner domain.Generator, model string, logger *zap.Logger) *InstrumentedGenerator {
	return &InstrumentedGenerator{inner: inner, model: model, logger: logger}
}

// Generate delegates to the inner generator and records the outcome.
func (g *InstrumentedGenerator) Generate(ctx context.Context, p domain.Prompt) (domain.Generation, error) {
	kind := string(p.Kind)
	start := time.Now()

	result, err := g.inner.Generate(ctx, p)

	duration := time.Since(start)
	metrics.GenerationRequestDuration.WithLabelValues(g.model, kind).Observe(duration.Seconds())

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.model, kind, "error").Inc()
		g.logger.Error("Generation request failed",
			zap.String("model", g.model),
			zap.String("kind", kind),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.Generation{}, fmt.Errorf("generate: %w", err)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(g.model, kind, "success").Inc()
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "prompt").Add(float64(result.PromptTokens))
	metrics.GenerationTokensTotal.WithLabelValues(g.model, "completion").Add(float64(result.CompletionTokens))

	g.logger.Debug("Generation request completed",
		zap.String("model", g.model),
		zap.String("kind", kind),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
	)
	return result, nil
}
