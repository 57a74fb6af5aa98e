package reporter

import "context"

// FallbackReporter reports to Fallback when Reporter fails. Fallback receives
// the failure of the first reporter.
type FallbackReporter struct {
	Reporter Reporter
	Fallback Reporter
}

func (r *FallbackReporter) ReportWithLevel(ctx context.Context, level string, err error) error {
	if err2 := r.Reporter.ReportWithLevel(ctx, level, err); err2 != nil {
		r.Fallback.ReportWithLevel(ctx, level, err2)
		return err2
	}

	return nil
}

func (r *FallbackReporter) Flush() {
	for _, reporter := range []Reporter{r.Reporter, r.Fallback} {
		if f, ok := reporter.(flusher); ok {
			f.Flush()
		}
	}
}
