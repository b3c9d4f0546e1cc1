package calib

// #region constants
// NeutralLabel is the sentinel returned when no label clears its threshold.
const NeutralLabel = "neutral"

// Clamp ranges applied to configured calibration values at load time.
const (
	MinTemperature = 0.3
	MaxTemperature = 3.0
	MinThreshold   = 0.0
	MaxThreshold   = 0.99
)

const (
	defaultTemperature = 1.0
	defaultThreshold   = 0.5
)

// #endregion constants

// #region projection
// Projection is a linear map from an input vector to (valence, arousal).
// Weights is 2 rows (valence, arousal) by input-dimension columns.
type Projection struct {
	Weights [][]float64
	Bias    []float64
}

// inDim returns the expected input dimension, or -1 when the shape is unusable.
func (p *Projection) inDim() int {
	if p == nil || len(p.Weights) != 2 || len(p.Bias) != 2 {
		return -1
	}
	if len(p.Weights[0]) == 0 || len(p.Weights[0]) != len(p.Weights[1]) {
		return -1
	}
	return len(p.Weights[0])
}

// #endregion projection

// #region profile
// Profile holds the immutable per-load calibration state: label order,
// per-label temperature and threshold, and the optional VA projections.
// A Profile is never mutated after Load; hot swaps go through Provider.
type Profile struct {
	Labels      []string
	Temperature []float64
	Threshold   []float64
	HiddenProj  *Projection
	ProbProj    *Projection

	// Degraded is set when a configured base file was missing or malformed
	// and the profile fell back to identity calibration. A profile built
	// without a base file is identity by choice and is not degraded.
	Degraded bool

	// ClampCount counts configured values pushed back into safe ranges at
	// load; ClampedIdx lists the affected label indices.
	ClampCount int
	ClampedIdx []int

	index map[string]int
}

// #endregion profile

// #region override
// Override adjusts one label's calibration. Nil fields keep the base value.
type Override struct {
	Temperature *float64
	Threshold   *float64
}

// #endregion override

// #region result
// LabelScore pairs a label with its calibrated probability.
type LabelScore struct {
	Label       string
	Probability float64
}

// Result is the per-item scoring output. Immutable once built; safe to share
// between the memo cache and multiple waiters.
type Result struct {
	TopLabels     []LabelScore
	Probabilities map[string]float64
	ActiveLabels  []string
	Valence       float64
	Arousal       float64
}

// #endregion result
