package holdfast

import (
	"time"

	"github.com/NitishJha0207/holdfast/kv"
)

// Default sizing of the four client caches and their shared lifetime.
const (
	DefaultPagesMax   = 50
	DefaultDataMax    = 100
	DefaultAssetsMax  = 30
	DefaultRecordsMax = 50
	DefaultCacheTTL   = 5 * time.Minute
)

// DefaultOptions returns the recommended set of options for production
// use. Currently this adds an in-process ephemeral tier; additional
// defaults may be added in future versions.
func DefaultOptions() []Option {
	return []Option{
		WithEphemeralTier(kv.NewMem()),
	}
}
