package sink

import (
	"fmt"
)

// SendWithFallback sends record via cfg, and on failure appends it to
// fallbackPath instead of propagating the error, if fallbackPath is
// non-empty. This is the generalized fallback sink of SPEC_FULL.md
// section 9, grounded on clade/libinterceptor/data.c's
// intercept_call_fallback. There is exactly one fallback attempt: if
// it also fails, the returned error names the primary failure and
// wraps the fallback failure, and the process still terminates — this
// does not reintroduce retries.
func SendWithFallback(cfg Config, fallbackPath, record string) error {
	primaryErr := Send(cfg, record)
	if primaryErr == nil {
		return nil
	}
	if fallbackPath == "" {
		return primaryErr
	}
	if err := appendFile(fallbackPath, record); err != nil {
		return fmt.Errorf("sink: primary failed (%v) and fallback failed: %w", primaryErr, err)
	}
	return nil
}
