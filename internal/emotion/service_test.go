package emotion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/emotion-core/internal/backend"
	"github.com/danielpatrickdp/emotion-core/internal/batch"
	"github.com/danielpatrickdp/emotion-core/internal/calib"
	"github.com/danielpatrickdp/emotion-core/internal/shadow"
)

// #region mock-backend

type stubScorer struct {
	mu     sync.Mutex
	labels []string
	logits []float32
	err    error
	calls  int
}

func newStubScorer() *stubScorer {
	return &stubScorer{
		labels: []string{"anxious", "hopeful", "neutral"},
		logits: []float32{2.0, 1.0, 0.0},
	}
}

func (s *stubScorer) Infer(_ context.Context, texts []string, _ int) ([]backend.ItemOutput, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]backend.ItemOutput, len(texts))
	for i := range texts {
		logits := make([]float32, len(s.logits))
		copy(logits, s.logits)
		out[i] = backend.ItemOutput{Logits: logits}
	}
	return out, nil
}

func (s *stubScorer) Labels(context.Context) ([]string, error) {
	return s.labels, nil
}

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// #endregion mock-backend

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Batch = batch.Config{MaxBatchItems: 1, MaxBatchDelay: time.Second}
	cfg.Shadow.SamplingRate = 0
	return cfg
}

func newTestService(t *testing.T, scorer backend.Scorer, cfg Config) *Service {
	t.Helper()
	svc, err := New(scorer, cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestNewRejectsNilBackend(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestScoreEndToEnd(t *testing.T) {
	svc := newTestService(t, newStubScorer(), fastConfig())

	res, err := svc.Score(context.Background(), "I feel anxious but also hopeful", 128, 3)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if res.TopLabels[0].Label != "anxious" {
		t.Fatalf("expected top label anxious, got %s", res.TopLabels[0].Label)
	}
	probs := res.Probabilities
	if !(probs["anxious"] > probs["hopeful"] && probs["hopeful"] > probs["neutral"]) {
		t.Fatalf("expected anxious > hopeful > neutral, got %v", probs)
	}
	if res.Valence < -1 || res.Valence > 1 || res.Arousal < -1 || res.Arousal > 1 {
		t.Fatalf("valence/arousal out of range: %v %v", res.Valence, res.Arousal)
	}
}

func TestScoreCacheIdempotence(t *testing.T) {
	mock := newStubScorer()
	svc := newTestService(t, mock, fastConfig())

	first, err := svc.Score(context.Background(), "Same text twice", 128, 3)
	if err != nil {
		t.Fatalf("first score: %v", err)
	}
	calls := mock.callCount()

	// Different surface whitespace and casing, same normalized key.
	second, err := svc.Score(context.Background(), "  same TEXT twice ", 128, 3)
	if err != nil {
		t.Fatalf("second score: %v", err)
	}
	if second != first {
		t.Fatal("cache hit should return the shared result")
	}
	if mock.callCount() != calls {
		t.Fatalf("cache hit triggered a backend call: %d -> %d", calls, mock.callCount())
	}
}

func TestScoreAsync(t *testing.T) {
	svc := newTestService(t, newStubScorer(), fastConfig())

	f, err := svc.ScoreAsync(context.Background(), "async text", 128, 1)
	if err != nil {
		t.Fatalf("score async: %v", err)
	}
	res, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if res.TopLabels[0].Label != "anxious" {
		t.Fatalf("unexpected top label %s", res.TopLabels[0].Label)
	}
}

func TestBackendFailureSurfaced(t *testing.T) {
	mock := newStubScorer()
	mock.err = errors.New("connection refused")
	svc := newTestService(t, mock, fastConfig())

	_, err := svc.Score(context.Background(), "doomed request", 128, 1)
	if !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWarmup(t *testing.T) {
	mock := newStubScorer()
	svc := newTestService(t, mock, fastConfig())

	if err := svc.Warmup(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if mock.callCount() != 1 {
		t.Fatalf("expected 1 backend call after warmup, got %d", mock.callCount())
	}

	// Warmup with a failing backend reports the error without panicking.
	mock.mu.Lock()
	mock.err = errors.New("still loading")
	mock.mu.Unlock()
	svc2 := newTestService(t, mock, fastConfig())
	if err := svc2.Warmup(context.Background()); !errors.Is(err, backend.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from failed warmup, got %v", err)
	}
}

func TestDegradedCalibrationStillServes(t *testing.T) {
	cfg := fastConfig()
	cfg.CalibrationPath = "/nonexistent/calibration.yaml"
	svc := newTestService(t, newStubScorer(), cfg)

	res, err := svc.Score(context.Background(), "served under degraded calibration", 128, 1)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if res.TopLabels[0].Label != "anxious" {
		t.Fatalf("identity fallback should still rank backend logits, got %s", res.TopLabels[0].Label)
	}
	if !svc.HealthSnapshot().CalibrationDegraded {
		t.Fatal("expected degraded flag in health snapshot")
	}
}

func TestDefaultConfigIsNotDegraded(t *testing.T) {
	svc := newTestService(t, newStubScorer(), fastConfig())

	if svc.HealthSnapshot().CalibrationDegraded {
		t.Fatal("default config with no calibration file must not report degraded")
	}
}

func TestHealthSnapshotCanaryBaseline(t *testing.T) {
	svc := newTestService(t, newStubScorer(), fastConfig())

	hs := svc.HealthSnapshot()
	if !hs.CanaryOK {
		t.Fatal("startup canary should pass on identity calibration")
	}
	if hs.CanaryHash != shadow.BaselineHash {
		t.Fatalf("expected baseline hash %d, got %d", shadow.BaselineHash, hs.CanaryHash)
	}
}

func TestSwapProfileRerunsCanary(t *testing.T) {
	svc := newTestService(t, newStubScorer(), fastConfig())
	before := svc.HealthSnapshot().CanaryHash

	p := calib.Load("", nil, []string{"anxious", "hopeful", "neutral"})
	for i := range p.Temperature {
		p.Temperature[i] = 0.5
	}
	svc.SwapProfile(p)

	after := svc.HealthSnapshot().CanaryHash
	if after == before {
		t.Fatal("swapping to a sharpened profile should change the canary hash")
	}
	if svc.Profile() != p {
		t.Fatal("active profile should be the swapped one")
	}
}

func TestShadowObservesScoredItems(t *testing.T) {
	cfg := fastConfig()
	cfg.Shadow.SamplingRate = 1.0
	svc := newTestService(t, newStubScorer(), cfg)

	if _, err := svc.Score(context.Background(), "observe me", 128, 1); err != nil {
		t.Fatalf("score: %v", err)
	}
	hs := svc.HealthSnapshot()
	if hs.ShadowSampleCount != 1 {
		t.Fatalf("expected 1 shadow sample, got %d", hs.ShadowSampleCount)
	}
	if len(hs.ShadowTopLabels) == 0 {
		t.Fatal("expected tracked labels after an observation")
	}
}

func TestCloseFailsSubsequentScores(t *testing.T) {
	svc := newTestService(t, newStubScorer(), fastConfig())
	svc.Close()

	_, err := svc.Score(context.Background(), "after close", 128, 1)
	if !errors.Is(err, batch.ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
	svc.Close() // idempotent
}
