package calib

import (
	"fmt"
	"math"
	"sort"
)

// #region apply
// Apply runs per-label temperature scaling on raw model logits.
// pre is sigmoid(raw) — the uncalibrated probabilities kept for shadow
// comparison — and post is sigmoid(raw / temperature[i]). Labels are
// independent sigmoids (multi-label), never a shared softmax.
func (p *Profile) Apply(raw []float32) (pre, post []float64) {
	pre = make([]float64, len(raw))
	post = make([]float64, len(raw))
	for i, r := range raw {
		pre[i] = sigmoid(float64(r))
		post[i] = sigmoid(float64(r) / p.temperatureAt(i))
	}
	return pre, post
}

// #endregion apply

// #region select-top
// SelectTop picks the highest post-calibration label, gated by that label's
// own threshold: a label strictly below its threshold is never chosen even
// when it carries the largest probability. The degraded pick is the neutral
// sentinel with index -1.
func (p *Profile) SelectTop(post []float64) (string, int) {
	if len(post) == 0 {
		return NeutralLabel, -1
	}
	best := 0
	for i, v := range post {
		if v > post[best] {
			best = i
		}
	}
	if post[best] < p.thresholdAt(best) {
		return NeutralLabel, -1
	}
	return p.labelAt(best), best
}

// #endregion select-top

// #region build-result
// BuildResult assembles the per-item Result from calibrated probabilities.
// topK bounds the ranked label list; topK <= 0 means all labels.
func (p *Profile) BuildResult(post []float64, hidden []float32, topK int) *Result {
	ranked := RankIndices(post, len(post))

	if topK <= 0 || topK > len(ranked) {
		topK = len(ranked)
	}
	top := make([]LabelScore, 0, topK)
	for _, idx := range ranked[:topK] {
		top = append(top, LabelScore{Label: p.labelAt(idx), Probability: post[idx]})
	}

	probs := make(map[string]float64, len(post))
	var active []string
	for i, v := range post {
		probs[p.labelAt(i)] = v
		if v >= p.thresholdAt(i) {
			active = append(active, p.labelAt(i))
		}
	}

	valence, arousal := p.estimateVA(post, hidden)
	return &Result{
		TopLabels:     top,
		Probabilities: probs,
		ActiveLabels:  active,
		Valence:       valence,
		Arousal:       arousal,
	}
}

// Score is the single-item convenience path: Apply then BuildResult.
func (p *Profile) Score(raw []float32, hidden []float32, topK int) *Result {
	_, post := p.Apply(raw)
	return p.BuildResult(post, hidden, topK)
}

// #endregion build-result

// #region va-estimation
// estimateVA computes (valence, arousal) with a three-tier fallback:
// hidden projection → probability projection → statistical default.
// It always produces a value in [-1, 1] on both axes.
func (p *Profile) estimateVA(post []float64, hidden []float32) (float64, float64) {
	if dim := p.HiddenProj.inDim(); dim > 0 && dim == len(hidden) {
		x := make([]float64, len(hidden))
		for i, h := range hidden {
			x[i] = float64(h)
		}
		return p.HiddenProj.project(x)
	}
	if dim := p.ProbProj.inDim(); dim > 0 && dim == len(post) {
		return p.ProbProj.project(post)
	}

	// Statistical default over the calibrated probabilities.
	m := mean(post)
	sd := stddev(post, m)
	return clampUnit(2 * (m - 0.5)), clampUnit(2 * sd)
}

// project applies the linear map and squashes each axis with tanh.
func (pr *Projection) project(x []float64) (float64, float64) {
	out := [2]float64{}
	for k := 0; k < 2; k++ {
		sum := pr.Bias[k]
		for j, v := range x {
			sum += pr.Weights[k][j] * v
		}
		out[k] = math.Tanh(sum)
	}
	return out[0], out[1]
}

// #endregion va-estimation

// #region ranking
// RankIndices returns the indices of post sorted by descending probability,
// truncated to at most n entries. Ties keep ascending index order.
func RankIndices(post []float64, n int) []int {
	idx := make([]int, len(post))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return post[idx[a]] > post[idx[b]]
	})
	if n >= 0 && n < len(idx) {
		idx = idx[:n]
	}
	return idx
}

// #endregion ranking

// #region accessors
// The accessors tolerate a label-count mismatch between the profile and the
// backend output: out-of-range indices fall back to defaults so a stale or
// empty profile degrades instead of panicking.
func (p *Profile) labelAt(i int) string {
	if i >= 0 && i < len(p.Labels) {
		return p.Labels[i]
	}
	return fmt.Sprintf("label_%d", i)
}

func (p *Profile) temperatureAt(i int) float64 {
	if i >= 0 && i < len(p.Temperature) {
		return p.Temperature[i]
	}
	return defaultTemperature
}

func (p *Profile) thresholdAt(i int) float64 {
	if i >= 0 && i < len(p.Threshold) {
		return p.Threshold[i]
	}
	return defaultThreshold
}

// Thresholds returns the effective threshold for each of the n output labels.
func (p *Profile) Thresholds(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p.thresholdAt(i)
	}
	return out
}

// #endregion accessors

// #region helpers
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// clampUnit restricts v to [-1, 1].
func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func stddev(v []float64, m float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var variance float64
	for _, x := range v {
		d := x - m
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(v)))
}

// #endregion helpers
