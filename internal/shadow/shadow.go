package shadow

import (
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// #region config
// Config controls sampling, logging cadence, and canary drift limits.
type Config struct {
	SamplingRate  float64       // fraction of observations recorded
	LogCooldown   time.Duration // minimum gap between summary log lines
	DriftEpsilon  int64         // max canary hash deviation before warning
	DriftCooldown time.Duration // minimum gap between drift warnings
}

// DefaultConfig returns the serving defaults.
func DefaultConfig() Config {
	return Config{
		SamplingRate:  0.05,
		LogCooldown:   60 * time.Second,
		DriftEpsilon:  2500,
		DriftCooldown: 60 * time.Second,
	}
}

// #endregion config

// #region limits
const (
	// maxTrackedRank bounds how many ranked labels one observation updates.
	maxTrackedRank = 10
	// snapshotLabels bounds how many labels a snapshot reports.
	snapshotLabels = 5
)

// #endregion limits

// #region auditor
// Auditor passively tracks calibration drift on live traffic: per-label
// running mean of the post-pre probability delta and of the activation rate,
// via incremental averaging. Observations are sampled and log output is
// rate-limited; nothing here ever alters a served result.
type Auditor struct {
	mu  sync.Mutex
	cfg Config

	sampleCount int64
	labels      map[int]*labelStat

	lastLog    time.Time
	lastDrift  time.Time
	lastCanary CanaryResult
}

type labelStat struct {
	count          int64
	meanDelta      float64
	meanActivation float64
}

// NewAuditor creates an Auditor with the given config.
func NewAuditor(cfg Config) *Auditor {
	return &Auditor{
		cfg:    cfg,
		labels: make(map[int]*labelStat),
	}
}

// #endregion auditor

// #region observe
// Observe records one calibration observation with probability SamplingRate.
// ranked lists label indices by descending post probability; only the first
// maxTrackedRank entries are tracked. Raw text never reaches the auditor.
func (a *Auditor) Observe(pre, post, thresholds []float64, ranked []int) {
	if rand.Float64() >= a.cfg.SamplingRate {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sampleCount++
	limit := len(ranked)
	if limit > maxTrackedRank {
		limit = maxTrackedRank
	}
	for _, idx := range ranked[:limit] {
		if idx < 0 || idx >= len(post) || idx >= len(pre) {
			continue
		}
		st, ok := a.labels[idx]
		if !ok {
			st = &labelStat{}
			a.labels[idx] = st
		}
		st.count++
		delta := post[idx] - pre[idx]
		st.meanDelta += (delta - st.meanDelta) / float64(st.count)

		var activation float64
		if idx < len(thresholds) && post[idx] >= thresholds[idx] {
			activation = 1
		}
		st.meanActivation += (activation - st.meanActivation) / float64(st.count)
	}

	if time.Since(a.lastLog) >= a.cfg.LogCooldown {
		a.lastLog = time.Now()
		log.Printf("[SHADOW] samples=%d tracked_labels=%d", a.sampleCount, len(a.labels))
	}
}

// #endregion observe

// #region snapshot
// LabelStat is one label's aggregate, keyed by model output index.
type LabelStat struct {
	Index          int
	Count          int64
	MeanDelta      float64
	MeanActivation float64
}

// Stats is the numeric-only shadow summary for health inspection.
type Stats struct {
	SampleCount int64
	TopLabels   []LabelStat
}

// Snapshot reports the sample count and the most-observed labels.
func (a *Auditor) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]LabelStat, 0, len(a.labels))
	for idx, st := range a.labels {
		all = append(all, LabelStat{
			Index:          idx,
			Count:          st.count,
			MeanDelta:      st.meanDelta,
			MeanActivation: st.meanActivation,
		})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Index < all[j].Index
	})
	if len(all) > snapshotLabels {
		all = all[:snapshotLabels]
	}
	return Stats{SampleCount: a.sampleCount, TopLabels: all}
}

// #endregion snapshot
