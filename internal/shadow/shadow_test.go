package shadow

import (
	"math"
	"testing"
	"time"
)

func alwaysSample() Config {
	cfg := DefaultConfig()
	cfg.SamplingRate = 1.0
	return cfg
}

func TestObserveZeroSamplingRecordsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingRate = 0
	a := NewAuditor(cfg)

	for i := 0; i < 100; i++ {
		a.Observe([]float64{0.5}, []float64{0.6}, []float64{0.5}, []int{0})
	}

	if got := a.Snapshot().SampleCount; got != 0 {
		t.Fatalf("expected 0 samples with rate 0, got %d", got)
	}
}

func TestObserveWelfordMeans(t *testing.T) {
	a := NewAuditor(alwaysSample())

	thresholds := []float64{0.5, 0.5}
	// Observation 1: label 0 delta +0.2, active; label 1 delta -0.1, inactive.
	a.Observe([]float64{0.5, 0.4}, []float64{0.7, 0.3}, thresholds, []int{0, 1})
	// Observation 2: label 0 delta 0.0, active; label 1 delta +0.3, active.
	a.Observe([]float64{0.6, 0.2}, []float64{0.6, 0.5}, thresholds, []int{0, 1})

	st := a.Snapshot()
	if st.SampleCount != 2 {
		t.Fatalf("expected 2 samples, got %d", st.SampleCount)
	}
	if len(st.TopLabels) != 2 {
		t.Fatalf("expected 2 tracked labels, got %d", len(st.TopLabels))
	}

	byIndex := map[int]LabelStat{}
	for _, ls := range st.TopLabels {
		byIndex[ls.Index] = ls
	}

	l0 := byIndex[0]
	if math.Abs(l0.MeanDelta-0.1) > 1e-9 {
		t.Errorf("label 0 mean delta: expected 0.1, got %v", l0.MeanDelta)
	}
	if math.Abs(l0.MeanActivation-1.0) > 1e-9 {
		t.Errorf("label 0 activation: expected 1.0, got %v", l0.MeanActivation)
	}

	l1 := byIndex[1]
	if math.Abs(l1.MeanDelta-0.1) > 1e-9 {
		t.Errorf("label 1 mean delta: expected 0.1, got %v", l1.MeanDelta)
	}
	if math.Abs(l1.MeanActivation-0.5) > 1e-9 {
		t.Errorf("label 1 activation: expected 0.5, got %v", l1.MeanActivation)
	}
}

func TestObserveTracksAtMostTopTen(t *testing.T) {
	a := NewAuditor(alwaysSample())

	n := 15
	pre := make([]float64, n)
	post := make([]float64, n)
	thr := make([]float64, n)
	ranked := make([]int, n)
	for i := range ranked {
		ranked[i] = i
		post[i] = 0.5
		thr[i] = 0.5
	}
	a.Observe(pre, post, thr, ranked)

	a.mu.Lock()
	tracked := len(a.labels)
	a.mu.Unlock()
	if tracked != maxTrackedRank {
		t.Fatalf("expected %d tracked labels, got %d", maxTrackedRank, tracked)
	}
}

func TestSnapshotReportsTopFiveByCount(t *testing.T) {
	a := NewAuditor(alwaysSample())

	// Label i gets i+1 observations.
	for i := 0; i < 8; i++ {
		for j := 0; j <= i; j++ {
			a.Observe([]float64{0.5}, []float64{0.6}, []float64{0.5}, []int{i})
		}
	}

	st := a.Snapshot()
	if len(st.TopLabels) != snapshotLabels {
		t.Fatalf("expected %d labels in snapshot, got %d", snapshotLabels, len(st.TopLabels))
	}
	if st.TopLabels[0].Index != 7 {
		t.Errorf("expected most-observed label first, got index %d", st.TopLabels[0].Index)
	}
	for i := 1; i < len(st.TopLabels); i++ {
		if st.TopLabels[i].Count > st.TopLabels[i-1].Count {
			t.Fatal("snapshot labels not sorted by descending count")
		}
	}
}

func TestObserveIgnoresOutOfRangeIndices(t *testing.T) {
	a := NewAuditor(alwaysSample())

	a.Observe([]float64{0.5}, []float64{0.6}, []float64{0.5}, []int{0, 5, -1})

	st := a.Snapshot()
	if len(st.TopLabels) != 1 || st.TopLabels[0].Index != 0 {
		t.Fatalf("expected only label 0 tracked, got %+v", st.TopLabels)
	}
}

func TestObserveLogCooldown(t *testing.T) {
	cfg := alwaysSample()
	cfg.LogCooldown = time.Hour
	a := NewAuditor(cfg)

	a.Observe([]float64{0.5}, []float64{0.6}, []float64{0.5}, []int{0})
	first := a.lastLog
	if first.IsZero() {
		t.Fatal("expected first observation to log")
	}

	a.Observe([]float64{0.5}, []float64{0.6}, []float64{0.5}, []int{0})
	if !a.lastLog.Equal(first) {
		t.Fatal("second observation inside cooldown should not log")
	}
}
