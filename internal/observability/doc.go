// Package observability provides structured logging and metrics for the
// model router.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Prometheus metrics for provider attempts, model health and generations
//   - A no-op metrics sink for tests and disabled deployments
package observability
