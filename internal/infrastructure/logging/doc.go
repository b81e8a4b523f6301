// Package logging provides structured logging for Wormbot Core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Rotating log files via lumberjack
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # stdout, stderr, file
//	  file:
//	    path: "/var/log/wormbot/wormbot.log"
//	    max_size: 10      # megabytes before rotation
//	    max_backups: 5
//	    max_age: 30       # days
//	    compress: true
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("pan-tilt initialised", "pan", 1525, "tilt", 2050)
//	logger.Warn("pulse out of bounds", "axis", "pan", "pulse", 2600)
package logging
