package shadow

import (
	"log"
	"math"
	"time"

	"github.com/danielpatrickdp/emotion-core/internal/calib"
)

// #region constants
// canaryScores is the fixed synthetic three-label distribution; sums to 1.0.
// The scores are fed through Apply as logits so identity calibration
// reproduces them exactly.
var canaryScores = [3]float64{0.6, 0.3, 0.1}

// BaselineHash is the canary hash under identity calibration:
// round((1*0.6 + 2*0.3 + 3*0.1) * 1e6).
const BaselineHash int64 = 1500000

// Sum tolerance on the post-calibration canary vector.
const (
	canarySumMin = 0.9
	canarySumMax = 1.1
)

// #endregion constants

// #region canary-result
// CanaryResult is the stored outcome of the last canary run. All numeric.
type CanaryResult struct {
	OK        bool
	Hash      int64
	Sum       float64
	CheckedAt time.Time
}

// #endregion canary-result

// #region run-canary
// RunCanary pushes the synthetic distribution through the live calibration
// path and validates three invariants: the post vector still sums to ~1.0,
// threshold-gated top selection yields a real label rather than the neutral
// fallback, and, when the profile is identity, the deterministic hash matches
// BaselineHash. A failed canary is
// logged and reported via HealthSnapshot but never blocks serving.
func (a *Auditor) RunCanary(p *calib.Profile) CanaryResult {
	raw := make([]float32, len(canaryScores))
	for i, s := range canaryScores {
		raw[i] = float32(logit(s))
	}

	_, post := p.Apply(raw)

	var sum, weighted float64
	for i, v := range post {
		sum += v
		weighted += float64(i+1) * v
	}
	hash := int64(math.Round(weighted * 1e6))

	ok := sum >= canarySumMin && sum <= canarySumMax
	if _, topIdx := p.SelectTop(post); topIdx < 0 {
		ok = false
	}
	if isIdentity(p) && hash != BaselineHash {
		ok = false
	}

	res := CanaryResult{OK: ok, Hash: hash, Sum: sum, CheckedAt: time.Now()}

	a.mu.Lock()
	a.lastCanary = res
	a.mu.Unlock()

	if !ok {
		log.Printf("[SHADOW] canary failed: sum=%.4f hash=%d baseline=%d", sum, hash, BaselineHash)
	}
	a.DriftWarn(hash)
	return res
}

// LastCanary returns the stored result of the most recent canary run.
func (a *Auditor) LastCanary() CanaryResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastCanary
}

// #endregion run-canary

// #region drift-warn
// DriftWarn emits one numeric warning when the canary hash deviates from the
// baseline by more than DriftEpsilon, rate-limited by DriftCooldown.
func (a *Auditor) DriftWarn(hash int64) {
	dev := hash - BaselineHash
	if dev < 0 {
		dev = -dev
	}
	if dev <= a.cfg.DriftEpsilon {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastDrift) < a.cfg.DriftCooldown {
		return
	}
	a.lastDrift = time.Now()
	log.Printf("[SHADOW] canary drift: hash=%d baseline=%d deviation=%d", hash, BaselineHash, dev)
}

// #endregion drift-warn

// #region helpers
// isIdentity reports whether every label's temperature is exactly 1.0.
func isIdentity(p *calib.Profile) bool {
	for _, t := range p.Temperature {
		if t != 1.0 {
			return false
		}
	}
	return true
}

// logit is the inverse sigmoid.
func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// #endregion helpers
