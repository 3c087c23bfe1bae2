package driven

import (
	"time"

	"github.com/h10086733/es-admin-sub000/internal/core/domain"
)

// MetricsRecorder records sync run telemetry (Prometheus)
type MetricsRecorder interface {
	// RecordRows adds one batch's indexed and failed row counts
	RecordRows(sourceID string, strategy domain.StrategyKind, indexed, failed int)

	// RunStarted marks a run as active
	RunStarted(sourceID string)

	// RunFinished records the terminal status and duration of a run and
	// marks it inactive. Called exactly once per RunStarted.
	RunFinished(sourceID string, status domain.SyncStatus, elapsed time.Duration)
}
