// Package logging provides structured logging for the Baby Buddy bridge.
//
// It wraps log/slog so every package logs the same way: JSON for
// production, text for development, and a service/version pair on each entry.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("coordinator").Info("refresh complete", "children", 2)
//
// # Security
//
// Never log the Baby Buddy API key or JWT secret. Use Redact when a
// key has to be identified in a log line.
package logging
