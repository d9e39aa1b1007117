package features

import "time"

// Feature is a named capability. Records are immutable after creation;
// only administrative upserts by name may touch them.
type Feature struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
}

// SeedCount is the number of catalog entries created on first bootstrap.
const SeedCount = 10
