// Package logger provides the structured logging interface used across
// igharvest.
//
// It wraps zerolog behind the Logger interface so components can be handed a
// TestLogger in tests. Output is either colored console text or JSON lines,
// optionally mirrored to a file.
//
//	err := logger.Initialize(&cfg.Logging)
//	log := logger.GetLogger().WithField("component", "harvest")
//	log.InfoWithFields("Batch completed", map[string]interface{}{
//	    "accounts_processed": 3,
//	})
package logger
