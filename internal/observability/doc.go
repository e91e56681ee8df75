// Package observability provides structured logging, OpenTelemetry tracing,
// and batch-run SLO tracking shared across the worker binary.
//
// Prometheus metrics live with the HTTP handlers that serve them
// (internal/handler/http), since this is a single binary with one scrape
// endpoint rather than several services needing a shared registry.
//
// Subpackages:
//   - logging: structured logging utilities with slog
//   - tracing: OpenTelemetry tracing integration
//   - slo: service level objective gauges for the batch run
//
// Example usage:
//
//	import "github.com/zhanzhaozzz/newsradar/internal/observability/logging"
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("worker started")
//	}
package observability
