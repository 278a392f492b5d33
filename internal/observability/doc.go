// Package observability provides structured logging and metrics
// for the failover service.
//
// This package implements:
//   - Structured logging with contextual fields (zap-based)
//   - Request ID propagation into log lines
//   - In-process probe, sweep and switch counters
package observability
