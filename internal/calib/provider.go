package calib

import "sync/atomic"

// #region provider
// Provider holds the active Profile behind an atomic pointer so a hot swap
// replaces the whole profile at once. In-flight batches keep scoring with the
// snapshot they read at dispatch time.
type Provider struct {
	active atomic.Pointer[Profile]
}

// NewProvider creates a Provider seeded with the given profile.
func NewProvider(p *Profile) *Provider {
	v := &Provider{}
	v.active.Store(p)
	return v
}

// Current returns the active profile snapshot.
func (v *Provider) Current() *Profile {
	return v.active.Load()
}

// Swap atomically replaces the active profile.
func (v *Provider) Swap(p *Profile) {
	v.active.Store(p)
}

// #endregion provider
