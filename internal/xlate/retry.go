package xlate

import (
	"math/rand"
	"time"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
)

// backoffBase/backoffMax mirror the teacher's quota cooldown shape
// (sdk/cliproxy/auth/conductor.go's quotaBackoffBase/quotaBackoffMax:
// base * 2^level, capped), generalized to the manager's retry loop and
// jittered to a random delay between half and all of the capped value.
const (
	backoffBase = 250 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// nextBackoff returns the delay before retry attempt n (0-indexed: the
// delay before the first retry, after the first failure).
func nextBackoff(attempt int) time.Duration {
	d := backoffBase * time.Duration(uint64(1)<<uint(attempt))
	if d <= 0 || d > backoffMax {
		d = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

// retryable reports whether a failed result's error kind is worth another
// attempt. content_filtered and structural failures are never retried —
// retrying them wastes a slot for an error retrying cannot fix.
func retryable(te *apperrors.TranslationError) bool {
	if te == nil {
		return true
	}
	switch te.Kind {
	case apperrors.KindTransient, apperrors.KindRateLimited:
		return true
	default:
		return false
	}
}
