package emotion

// #region imports
import (
	"github.com/danielpatrickdp/emotion-core/internal/batch"
	"github.com/danielpatrickdp/emotion-core/internal/calib"
	"github.com/danielpatrickdp/emotion-core/internal/memo"
	"github.com/danielpatrickdp/emotion-core/internal/shadow"
)

// #endregion

// #region config

// Config bundles the per-stage configs for one service instance.
type Config struct {
	Batch  batch.Config
	Shadow shadow.Config

	// MemoCacheCapacity bounds the LRU result cache.
	MemoCacheCapacity int

	// CalibrationPath is the base calibration YAML file. Empty selects plain
	// identity calibration; an unreadable or malformed file degrades to
	// identity and is flagged in the health snapshot.
	CalibrationPath string

	// CalibrationOverrides adjusts individual labels on top of the base file.
	CalibrationOverrides map[string]calib.Override

	// CanarySchedule is a cron spec (e.g. "@every 10m") for periodic canary
	// re-runs. Empty disables the schedule; the startup canary always runs.
	CanarySchedule string
}

// DefaultConfig returns serving defaults for every stage.
func DefaultConfig() Config {
	return Config{
		Batch:             batch.DefaultConfig(),
		Shadow:            shadow.DefaultConfig(),
		MemoCacheCapacity: memo.DefaultCapacity,
	}
}

// #endregion

// #region health-snapshot

// HealthSnapshot is the externally safe service health view: all numeric,
// no free text.
type HealthSnapshot struct {
	CanaryOK            bool
	CanaryHash          int64
	ShadowSampleCount   int64
	ShadowTopLabels     []shadow.LabelStat
	CalibrationClamped  int
	ClampedLabelIndices []int
	CalibrationDegraded bool
}

// #endregion
