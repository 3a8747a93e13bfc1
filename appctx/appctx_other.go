//go:build !darwin

package appctx

// NewProvider returns an empty-snapshot provider; focus inspection is
// not wired up on this platform and the hints simply stay blank.
func NewProvider() Provider { return nullProvider{} }

type nullProvider struct{}

func (nullProvider) Current() (Snapshot, error) { return Snapshot{}, nil }
