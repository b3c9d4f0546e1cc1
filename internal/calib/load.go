package calib

import (
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// #region file-format
type fileProjection struct {
	Weights [][]float64 `yaml:"weights"`
	Bias    []float64   `yaml:"bias"`
}

type fileProfile struct {
	Labels                []string           `yaml:"labels"`
	Temperature           map[string]float64 `yaml:"temperature"`
	Threshold             map[string]float64 `yaml:"threshold"`
	HiddenProjection      *fileProjection    `yaml:"hidden_projection"`
	ProbabilityProjection *fileProjection    `yaml:"probability_projection"`
}

// #endregion file-format

// #region load
// Load builds a Profile from a base YAML file plus per-label overrides.
// fallbackLabels is used when the file names no label set (typically the
// labels reported by the scoring backend at startup).
//
// Load never fails: a missing, unreadable, or malformed file degrades to
// identity calibration (temperature 1.0, threshold 0.5 for every label) so
// the serving path stays available. The degradation is logged once here.
// An empty path is not a degradation; it selects identity calibration
// outright.
func Load(path string, overrides map[string]Override, fallbackLabels []string) *Profile {
	var base fileProfile
	degraded := false

	// An empty path means no base file was configured: plain identity
	// calibration, not a degraded load.
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[CALIB] base file %s unreadable, using identity calibration: %v", path, err)
			degraded = true
		} else if err := yaml.Unmarshal(data, &base); err != nil {
			log.Printf("[CALIB] base file %s malformed, using identity calibration: %v", path, err)
			degraded = true
			base = fileProfile{}
		}
	}

	labels := base.Labels
	if len(labels) == 0 {
		labels = fallbackLabels
	}

	p := &Profile{
		Labels:      labels,
		Temperature: make([]float64, len(labels)),
		Threshold:   make([]float64, len(labels)),
		Degraded:    degraded,
		index:       make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		p.Temperature[i] = defaultTemperature
		p.Threshold[i] = defaultThreshold
		p.index[strings.ToLower(l)] = i
	}

	if !degraded {
		p.mergeValues(base.Temperature, base.Threshold)
		p.HiddenProj = toProjection(base.HiddenProjection, "hidden")
		p.ProbProj = toProjection(base.ProbabilityProjection, "probability")
	}
	p.mergeOverrides(overrides)

	if p.ClampCount > 0 {
		log.Printf("[CALIB] clamped %d calibration values into safe ranges (%d labels affected)",
			p.ClampCount, len(p.ClampedIdx))
	}
	return p
}

// #endregion load

// #region merge
// mergeValues applies per-label temperature and threshold maps from the base
// file. Label matching is case-insensitive; unknown labels are ignored.
func (p *Profile) mergeValues(temps, thrs map[string]float64) {
	for name, v := range temps {
		if i, ok := p.index[strings.ToLower(name)]; ok {
			p.Temperature[i] = p.clampTemperature(v, i)
		}
	}
	for name, v := range thrs {
		if i, ok := p.index[strings.ToLower(name)]; ok {
			p.Threshold[i] = p.clampThreshold(v, i)
		}
	}
}

// mergeOverrides applies caller-supplied overrides on top of base values.
func (p *Profile) mergeOverrides(overrides map[string]Override) {
	for name, ov := range overrides {
		i, ok := p.index[strings.ToLower(name)]
		if !ok {
			continue
		}
		if ov.Temperature != nil {
			p.Temperature[i] = p.clampTemperature(*ov.Temperature, i)
		}
		if ov.Threshold != nil {
			p.Threshold[i] = p.clampThreshold(*ov.Threshold, i)
		}
	}
}

// #endregion merge

// #region clamping
func (p *Profile) clampTemperature(v float64, idx int) float64 {
	switch {
	case v < MinTemperature:
		p.recordClamp(idx)
		return MinTemperature
	case v > MaxTemperature:
		p.recordClamp(idx)
		return MaxTemperature
	}
	return v
}

func (p *Profile) clampThreshold(v float64, idx int) float64 {
	switch {
	case v < MinThreshold:
		p.recordClamp(idx)
		return MinThreshold
	case v > MaxThreshold:
		p.recordClamp(idx)
		return MaxThreshold
	}
	return v
}

func (p *Profile) recordClamp(idx int) {
	p.ClampCount++
	for _, existing := range p.ClampedIdx {
		if existing == idx {
			return
		}
	}
	p.ClampedIdx = append(p.ClampedIdx, idx)
}

// #endregion clamping

// #region projection-load
// toProjection validates a projection definition. Malformed shapes are
// dropped so VA estimation falls through to the next tier.
func toProjection(fp *fileProjection, kind string) *Projection {
	if fp == nil {
		return nil
	}
	proj := &Projection{Weights: fp.Weights, Bias: fp.Bias}
	if proj.inDim() < 0 {
		log.Printf("[CALIB] %s projection has unusable shape, dropping", kind)
		return nil
	}
	return proj
}

// #endregion projection-load
