package emotion

// #region imports
import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/danielpatrickdp/emotion-core/internal/backend"
	"github.com/danielpatrickdp/emotion-core/internal/batch"
	"github.com/danielpatrickdp/emotion-core/internal/calib"
	"github.com/danielpatrickdp/emotion-core/internal/memo"
	"github.com/danielpatrickdp/emotion-core/internal/shadow"
)

// #endregion

// #region service

// Service is the single entry point of the scoring core: cache-first lookup,
// batched backend scoring, calibrated results, background shadow auditing.
type Service struct {
	cfg      Config
	scorer   backend.Scorer
	profiles *calib.Provider
	cache    *memo.Cache
	auditor  *shadow.Auditor
	sched    *batch.Scheduler
	canaries *cron.Cron

	closeOnce sync.Once
}

// #endregion

// #region constructor

// New wires a Service against the given backend. The calibration profile is
// loaded once here; when the base file names no labels the label set reported
// by the backend is inherited. The startup canary runs before New returns.
func New(scorer backend.Scorer, cfg Config) (*Service, error) {
	if scorer == nil {
		return nil, errors.New("emotion: nil scoring backend")
	}

	var fallbackLabels []string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	labels, err := scorer.Labels(ctx)
	cancel()
	if err != nil {
		log.Printf("[EMO] backend label set unavailable at startup: %v", err)
	} else {
		fallbackLabels = labels
	}

	profile := calib.Load(cfg.CalibrationPath, cfg.CalibrationOverrides, fallbackLabels)
	provider := calib.NewProvider(profile)
	cache := memo.NewCache(cfg.MemoCacheCapacity)
	auditor := shadow.NewAuditor(cfg.Shadow)

	s := &Service{
		cfg:      cfg,
		scorer:   scorer,
		profiles: provider,
		cache:    cache,
		auditor:  auditor,
		sched:    batch.NewScheduler(cfg.Batch, scorer, provider, cache, auditor),
	}

	s.auditor.RunCanary(profile)

	if cfg.CanarySchedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.CanarySchedule, func() {
			s.auditor.RunCanary(s.profiles.Current())
		})
		if err != nil {
			log.Printf("[EMO] invalid canary schedule %q: %v", cfg.CanarySchedule, err)
		} else {
			c.Start()
			s.canaries = c
		}
	}

	return s, nil
}

// #endregion

// #region score

// Score runs one text through the cache-first scoring path and blocks until
// its batch completes. No timeout beyond what ctx imposes.
func (s *Service) Score(ctx context.Context, text string, maxLength, topK int) (*calib.Result, error) {
	f, err := s.ScoreAsync(ctx, text, maxLength, topK)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// ScoreAsync is the non-blocking variant: the returned future resolves when
// the request's batch completes. A cache hit resolves immediately. Cancelling
// ctx before the batch seals removes the request; afterwards cancellation is
// advisory only.
func (s *Service) ScoreAsync(ctx context.Context, text string, maxLength, topK int) (*batch.Future, error) {
	if res, ok := s.cache.Get(memo.NormalizeKey(text)); ok {
		return batch.ResolvedFuture(res), nil
	}
	return s.sched.Submit(ctx, batch.Request{
		Text:      text,
		MaxLength: maxLength,
		TopK:      topK,
	})
}

// #endregion

// #region warmup

// warmupText is a throwaway probe; its cache entry is one harmless row.
const warmupText = "warmup probe"

// Warmup forces lazy backend initialization with one throwaway call.
// Failures are logged and surfaced but must not crash the caller; serving
// degrades to per-call backend errors until the backend recovers.
func (s *Service) Warmup(ctx context.Context) error {
	_, err := s.Score(ctx, warmupText, 32, 1)
	if err != nil {
		log.Printf("[EMO] warmup failed: %v", err)
	}
	return err
}

// #endregion

// #region profile-swap

// SwapProfile atomically replaces the active calibration profile and re-runs
// the canary against it. In-flight batches keep their old snapshot.
func (s *Service) SwapProfile(p *calib.Profile) {
	s.profiles.Swap(p)
	s.auditor.RunCanary(p)
}

// Profile returns the active calibration profile snapshot.
func (s *Service) Profile() *calib.Profile {
	return s.profiles.Current()
}

// #endregion

// #region health

// HealthSnapshot reports canary and shadow state for external inspection.
func (s *Service) HealthSnapshot() HealthSnapshot {
	canary := s.auditor.LastCanary()
	stats := s.auditor.Snapshot()
	p := s.profiles.Current()
	return HealthSnapshot{
		CanaryOK:            canary.OK,
		CanaryHash:          canary.Hash,
		ShadowSampleCount:   stats.SampleCount,
		ShadowTopLabels:     stats.TopLabels,
		CalibrationClamped:  p.ClampCount,
		ClampedLabelIndices: p.ClampedIdx,
		CalibrationDegraded: p.Degraded,
	}
}

// #endregion

// #region close

// Close stops the canary schedule and shuts the scheduler down; queued
// submissions fail with batch.ErrShuttingDown. Idempotent.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		if s.canaries != nil {
			s.canaries.Stop()
		}
		s.sched.Close()
	})
}

// #endregion
