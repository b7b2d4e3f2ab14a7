package backtest

import (
	"fmt"
	"time"
)

// DataValidationError reports historical data that fails validation during
// Load. It aborts the load call only, never an in-progress run.
type DataValidationError struct {
	Symbol string
	Reason string
}

func (e *DataValidationError) Error() string {
	return fmt.Sprintf("invalid data for %s: %s", e.Symbol, e.Reason)
}

// FatalError reports an unrecoverable simulation failure. It carries the
// symbol and timestamp where the run broke down and propagates to the
// caller of Run.
type FatalError struct {
	Symbol    string
	Timestamp time.Time
	Err       error
}

func (e *FatalError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("backtest failed at %s (%s): %v", e.Timestamp.Format(time.RFC3339), e.Symbol, e.Err)
	}
	return fmt.Sprintf("backtest failed at %s: %v", e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
