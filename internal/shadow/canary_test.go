package shadow

import (
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/emotion-core/internal/calib"
)

func floatPtr(v float64) *float64 { return &v }

func TestCanaryIdentityMatchesBaseline(t *testing.T) {
	a := NewAuditor(DefaultConfig())
	p := calib.Load("", nil, []string{"a", "b", "c"})

	res := a.RunCanary(p)

	if !res.OK {
		t.Fatalf("identity canary should pass, sum=%v hash=%d", res.Sum, res.Hash)
	}
	if res.Hash != BaselineHash {
		t.Fatalf("identity canary hash: expected %d, got %d", BaselineHash, res.Hash)
	}
	if math.Abs(res.Sum-1.0) > 1e-6 {
		t.Errorf("identity canary sum: expected 1.0, got %v", res.Sum)
	}
}

func TestCanaryTemperatureOverrideShiftsHash(t *testing.T) {
	a := NewAuditor(DefaultConfig())
	p := calib.Load("", map[string]calib.Override{
		"a": {Temperature: floatPtr(0.5)},
	}, []string{"a", "b", "c"})

	res := a.RunCanary(p)

	if !res.OK {
		t.Fatalf("override canary should still pass, sum=%v", res.Sum)
	}
	if res.Hash == BaselineHash {
		t.Fatal("temperature override should move the canary hash off baseline")
	}
}

func TestCanaryFailsWhenThresholdsGateEveryLabel(t *testing.T) {
	a := NewAuditor(DefaultConfig())
	p := calib.Load("", map[string]calib.Override{
		"a": {Threshold: floatPtr(0.99)},
		"b": {Threshold: floatPtr(0.99)},
		"c": {Threshold: floatPtr(0.99)},
	}, []string{"a", "b", "c"})

	res := a.RunCanary(p)

	if res.OK {
		t.Fatal("canary must fail when top selection falls back to neutral")
	}
}

func TestCanaryResultStored(t *testing.T) {
	a := NewAuditor(DefaultConfig())
	p := calib.Load("", nil, []string{"a", "b", "c"})

	res := a.RunCanary(p)
	got := a.LastCanary()

	if got.Hash != res.Hash || got.OK != res.OK {
		t.Fatalf("stored canary %+v does not match returned %+v", got, res)
	}
	if got.CheckedAt.IsZero() {
		t.Error("expected CheckedAt to be set")
	}
}

func TestDriftWarnWithinEpsilonIsSilent(t *testing.T) {
	a := NewAuditor(DefaultConfig())

	a.DriftWarn(BaselineHash + 100)

	if !a.lastDrift.IsZero() {
		t.Fatal("deviation within epsilon should not warn")
	}
}

func TestDriftWarnCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DriftCooldown = time.Hour
	a := NewAuditor(cfg)

	a.DriftWarn(BaselineHash + 10000)
	first := a.lastDrift
	if first.IsZero() {
		t.Fatal("large deviation should warn")
	}

	a.DriftWarn(BaselineHash + 20000)
	if !a.lastDrift.Equal(first) {
		t.Fatal("second warning inside cooldown should be suppressed")
	}
}

func TestIsIdentity(t *testing.T) {
	if !isIdentity(calib.Load("", nil, []string{"a", "b"})) {
		t.Fatal("default profile should be identity")
	}
	p := calib.Load("", map[string]calib.Override{"a": {Temperature: floatPtr(1.2)}}, []string{"a", "b"})
	if isIdentity(p) {
		t.Fatal("temperature override should not be identity")
	}
}
