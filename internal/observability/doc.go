// Package observability provides structured logging and Prometheus metrics
// for the dashboard API.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - HTTP request metrics
//   - credential cache and provider fetch metrics
package observability
