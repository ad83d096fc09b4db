// Package logger provides a structured logging interface for the exporter.
//
// It wraps the zerolog library to provide a clean, easy-to-use API with support for:
// - Multiple log levels (Debug, Info, Warn, Error, Fatal)
// - Structured logging with fields
// - Pretty console output with colors
// - File output
// - Context support for request tracing
// - Global logger instance for easy access
//
// Basic Usage:
//
//	import "github.com/workingman/BCP-data-warehouse/pkg/logger"
//
//	// Initialize the global logger
//	cfg := &config.LoggingConfig{
//	    Level: "info",
//	    File: "/var/log/lsexport.log",
//	}
//	err := logger.Initialize(cfg)
//
//	// Use the global logger
//	logger.Info("Export started")
//	logger.WithField("resource", "products").Info("Fetching resource")
//	logger.WithError(err).Error("Failed to fetch resource")
//
// Advanced Usage:
//
//	// Create a logger instance with fields
//	log := logger.GetLogger().
//	    WithField("component", "runner").
//	    WithField("export_dir", "20240101_120000")
//
//	// Use structured logging
//	log.InfoWithFields("Batch written", map[string]interface{}{
//	    "resource": "sales",
//	    "batch":    3,
//	    "records":  4000,
//	})
//
// The logger supports the following configuration options:
// - Level: Log level (debug, info, warn, error, fatal)
// - File: Path to log file (empty for console only)
package logger
