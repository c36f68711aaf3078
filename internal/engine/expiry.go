package engine

import (
	"time"

	"github.com/vitaliisemenov/gridcache/internal/entry"
)

// FixedExpiryPolicy applies the same TTL to every created and updated
// value and never changes the TTL on mere access, implementing
// entry.ExpiryPolicy for caches configured with a single blanket TTL.
type FixedExpiryPolicy struct {
	Create time.Duration
	Update time.Duration
}

// ForCreate implements entry.ExpiryPolicy.
func (p FixedExpiryPolicy) ForCreate() entry.TTLVerdict {
	if p.Create <= 0 {
		return entry.TTLVerdict{Sentinel: entry.TTLEternal}
	}
	return entry.TTLVerdict{Sentinel: entry.TTLExplicit, Duration: p.Create}
}

// ForUpdate implements entry.ExpiryPolicy.
func (p FixedExpiryPolicy) ForUpdate() entry.TTLVerdict {
	if p.Update <= 0 {
		return entry.TTLVerdict{Sentinel: entry.TTLNotChanged}
	}
	return entry.TTLVerdict{Sentinel: entry.TTLExplicit, Duration: p.Update}
}

// ForAccess implements entry.ExpiryPolicy: reads never touch the TTL.
func (p FixedExpiryPolicy) ForAccess() entry.TTLVerdict {
	return entry.TTLVerdict{Sentinel: entry.TTLNotChanged}
}

// EternalExpiryPolicy never assigns a TTL, implementing
// entry.ExpiryPolicy for caches that hold values indefinitely.
type EternalExpiryPolicy struct{}

func (EternalExpiryPolicy) ForCreate() entry.TTLVerdict {
	return entry.TTLVerdict{Sentinel: entry.TTLEternal}
}

func (EternalExpiryPolicy) ForUpdate() entry.TTLVerdict {
	return entry.TTLVerdict{Sentinel: entry.TTLNotChanged}
}

func (EternalExpiryPolicy) ForAccess() entry.TTLVerdict {
	return entry.TTLVerdict{Sentinel: entry.TTLNotChanged}
}
