package reporter

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/remind101/pagecrypt/logger"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// LogReporter writes errors to the logger carried by the context.
type LogReporter struct{}

func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

func (h *LogReporter) ReportWithLevel(ctx context.Context, level string, err error) error {
	file, line := "unknown", "0"
	if st, ok := err.(stackTracer); ok {
		if stack := st.StackTrace(); len(stack) > 0 {
			file = fmt.Sprintf("%s", stack[0])
			line = fmt.Sprintf("%d", stack[0])
		}
	}

	pairs := []interface{}{level, fmt.Sprintf(`"%v"`, err), "line", line, "file", file}
	switch level {
	case "debug":
		logger.Debug(ctx, "", pairs...)
	case "info":
		logger.Info(ctx, "", pairs...)
	case "warning", "warn":
		logger.Warn(ctx, "", pairs...)
	default:
		logger.Error(ctx, "", pairs...)
	}
	return nil
}
