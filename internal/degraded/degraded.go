package degraded

import (
	"time"

	"github.com/shree2160/sahayakAIv1/internal/traffic"
)

// RecordSuccess records a successfully answered query.
func RecordSuccess() {
	traffic.RecordSuccess()
}

// RecordError records a failed query (collaborator error, timeout, etc.).
func RecordError() {
	traffic.RecordError()
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return traffic.ErrorRate(window)
}

// Reset clears all recorded data. For tests only.
func Reset() {
	traffic.Reset()
}
