package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/emotion-core/internal/backend"
	"github.com/danielpatrickdp/emotion-core/internal/calib"
	"github.com/danielpatrickdp/emotion-core/internal/memo"
	"github.com/danielpatrickdp/emotion-core/internal/shadow"
)

// #region config
// Config bounds how long and how large an open group may grow.
type Config struct {
	MaxBatchItems int           // forced seal above this size
	MaxBatchDelay time.Duration // forced seal above this age
}

// DefaultConfig returns the serving defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchItems: 16,
		MaxBatchDelay: 8 * time.Millisecond,
	}
}

// #endregion config

// #region errors
// ErrShuttingDown is returned by Submit after Close has been called.
var ErrShuttingDown = errors.New("batch scheduler shutting down")

// #endregion errors

// #region request
// Request is one scoring request as seen by the scheduler.
type Request struct {
	Text      string // already normalized by the caller
	MaxLength int    // pre-tokenization truncation budget
	TopK      int    // number of top labels to report
}

// #endregion request

// #region pending
type outcome struct {
	result *calib.Result
	err    error
}

type pending struct {
	ctx context.Context
	req Request
	out chan outcome // buffered 1, written exactly once
}

// #endregion pending

// #region scheduler
// Scheduler coalesces concurrent scoring requests into backend batches.
// A single goroutine owns the open group: submissions arrive over a channel,
// the group seals on size or age, and each sealed group is processed on its
// own goroutine so backend calls pipeline while a new group fills.
type Scheduler struct {
	cfg      Config
	scorer   backend.Scorer
	profiles *calib.Provider
	cache    *memo.Cache     // optional
	auditor  *shadow.Auditor // optional

	submitCh  chan *pending
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	inflight  sync.WaitGroup

	mu     sync.Mutex // guards closed and orders sends against Close
	closed bool
}

// NewScheduler wires a scheduler and starts its group-forming loop.
// cache and auditor may be nil.
func NewScheduler(cfg Config, scorer backend.Scorer, profiles *calib.Provider, cache *memo.Cache, auditor *shadow.Auditor) *Scheduler {
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = DefaultConfig().MaxBatchItems
	}
	if cfg.MaxBatchDelay <= 0 {
		cfg.MaxBatchDelay = DefaultConfig().MaxBatchDelay
	}
	s := &Scheduler{
		cfg:      cfg,
		scorer:   scorer,
		profiles: profiles,
		cache:    cache,
		auditor:  auditor,
		submitCh: make(chan *pending, cfg.MaxBatchItems),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go s.run()
	return s
}

// #endregion scheduler

// #region submit
// Submit enqueues one request into the current open group. It never blocks
// on backend latency; it only waits for the group-forming loop to accept the
// item. After shutdown it fails fast with ErrShuttingDown. The returned
// Future resolves once the request's batch completes.
func (s *Scheduler) Submit(ctx context.Context, req Request) (*Future, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &pending{
		ctx: ctx,
		req: req,
		out: make(chan outcome, 1),
	}

	// The send happens under the lock so it strictly precedes Close marking
	// the scheduler closed: anything accepted here is still in submitCh (or
	// the open group) when the run loop drains on quit, and nothing can slip
	// into the channel buffer after the drain has finished.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	select {
	case s.submitCh <- p:
		s.mu.Unlock()
		return &Future{ch: p.out}, nil
	case <-ctx.Done():
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// #endregion submit

// #region run-loop
// run owns the open group. Group formation is strictly serialized here;
// processing of sealed groups overlaps freely.
func (s *Scheduler) run() {
	defer close(s.loopDone)

	var open []*pending
	var openedAt time.Time
	var timer *time.Timer
	var timerCh <-chan time.Time

	seal := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerCh = nil
		}
		group := open
		open = nil
		s.seal(group, openedAt)
	}

	for {
		select {
		case p := <-s.submitCh:
			open = append(open, p)
			if len(open) == 1 {
				openedAt = time.Now()
				timer = time.NewTimer(s.cfg.MaxBatchDelay)
				timerCh = timer.C
			}
			if len(open) >= s.cfg.MaxBatchItems {
				seal()
			}

		case <-timerCh:
			timer = nil
			timerCh = nil
			seal()

		case <-s.quit:
			if timer != nil {
				timer.Stop()
			}
			for _, p := range open {
				p.out <- outcome{err: ErrShuttingDown}
			}
			for {
				select {
				case p := <-s.submitCh:
					p.out <- outcome{err: ErrShuttingDown}
				default:
					return
				}
			}
		}
	}
}

// seal drops members whose context was cancelled before sealing and hands
// the rest to a processing goroutine. A group is sealed exactly once.
func (s *Scheduler) seal(group []*pending, openedAt time.Time) {
	live := group[:0]
	for _, p := range group {
		if err := p.ctx.Err(); err != nil {
			p.out <- outcome{err: err}
			continue
		}
		live = append(live, p)
	}
	if len(live) == 0 {
		return
	}

	batchID := uuid.New().String()
	log.Printf("[BATCH] seal batch=%s size=%d age=%s", batchID, len(live), time.Since(openedAt))

	s.inflight.Add(1)
	go s.process(batchID, live)
}

// #endregion run-loop

// #region process
// process runs one sealed group end to end: backend call, per-item
// calibration, cache fill, sampled shadow observation, waiter release.
// A backend error completes every member with the same failure; there are
// no internal retries.
func (s *Scheduler) process(batchID string, group []*pending) {
	defer s.inflight.Done()

	texts := make([]string, len(group))
	maxLength := 0
	for i, p := range group {
		texts[i] = p.req.Text
		if p.req.MaxLength > maxLength {
			maxLength = p.req.MaxLength
		}
	}

	outs, err := s.scorer.Infer(context.Background(), texts, maxLength)
	if err == nil && len(outs) != len(group) {
		err = fmt.Errorf("%w: got %d outputs for %d inputs", backend.ErrUnavailable, len(outs), len(group))
	}
	if err != nil {
		if !errors.Is(err, backend.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
		}
		log.Printf("[BATCH] batch=%s failed: %v", batchID, err)
		for _, p := range group {
			p.out <- outcome{err: err}
		}
		return
	}

	// Every item in this batch scores against the same profile snapshot.
	profile := s.profiles.Current()
	for i, p := range group {
		pre, post := profile.Apply(outs[i].Logits)
		res := profile.BuildResult(post, outs[i].Hidden, p.req.TopK)
		if s.cache != nil {
			s.cache.Put(memo.NormalizeKey(p.req.Text), res)
		}
		if s.auditor != nil {
			s.auditor.Observe(pre, post, profile.Thresholds(len(post)), calib.RankIndices(post, maxObservedRank))
		}
		p.out <- outcome{result: res}
	}
}

// maxObservedRank bounds the ranked indices handed to the auditor.
const maxObservedRank = 10

// #endregion process

// #region close
// Close stops the group-forming loop, fails queued and open items with
// ErrShuttingDown, and waits for in-flight batches to finish. Idempotent.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.quit)
		<-s.loopDone
		s.inflight.Wait()
	})
}

// #endregion close
