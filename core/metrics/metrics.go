// Package metrics provides abstract metrics interfaces so the coordination
// packages can be instrumented (Prometheus, StatsD, ...) without depending on
// a specific backend.
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}
