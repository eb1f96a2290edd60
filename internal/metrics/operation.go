package metrics

import (
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
)

// RecordOperation counts an operation outcome and observes its latency. It is
// deferred with a pointer to the named error result:
//
//	defer metrics.RecordOperation("wallet.deposit", time.Now(), &err)
//
// The result label is the domain error name, "ok", or "error".
func RecordOperation(operation string, start time.Time, errp *error) {
	OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	var err error
	if errp != nil {
		err = *errp
	}

	result := "ok"
	if err != nil {
		result = "error"
		var de *domain.Error
		if errors.As(err, &de) {
			result = de.Name
		}
		slog.Debug("Operation rejected", "operation", operation, "result", result, "error", err)
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
}
