package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tailorly/internal/domain"
	"github.com/kailas-cloud/tailorly/internal/metrics"
)

func TestInstrumentedGenerator_Success(t *testing.T) {
	inner := &mockGenerator{result: domain.Generation{Content: "hi", PromptTokens: 12, CompletionTokens: 30}}
	g := NewInstrumentedGenerator(inner, "model-ok", zap.NewNop())

	res, err := g.Generate(context.Background(), domain.Prompt{Kind: domain.KindResume})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content != "hi" {
		t.Errorf("expected hi, got %q", res.Content)
	}

	if v := testutil.ToFloat64(metrics.GenerationRequestsTotal.WithLabelValues("model-ok", "resume", "success")); v != 1 {
		t.Errorf("expected 1 success, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.GenerationTokensTotal.WithLabelValues("model-ok", "completion")); v != 30 {
		t.Errorf("expected 30 completion tokens, got %f", v)
	}
}

func TestInstrumentedGenerator_Error(t *testing.T) {
	inner := &mockGenerator{err: domain.ErrGenerationFailed}
	g := NewInstrumentedGenerator(inner, "model-err", zap.NewNop())

	_, err := g.Generate(context.Background(), domain.Prompt{Kind: domain.KindColdEmail})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if v := testutil.ToFloat64(metrics.GenerationRequestsTotal.WithLabelValues("model-err", "cold_email", "error")); v != 1 {
		t.Errorf("expected 1 error, got %f", v)
	}
}
