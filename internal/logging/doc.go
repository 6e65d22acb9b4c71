// Package logging provides structured logging for devcrew.
//
// It wraps Go's log/slog to write JSON lines that can be filtered after the
// fact. Every subsystem receives a child logger tagged with its component
// name, and long-running work (a team workflow, a diagnosis run) adds a run
// ID so that one invocation can be isolated in a shared log file.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/data", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	cacheLog := logger.WithComponent("cache")
//	cacheLog.Info("entry stored", "key", key, "bytes", n)
//
// # Rotation
//
// [NewRotatingLogger] writes through a [RotatingWriter], which rotates the
// file once it exceeds a size limit and keeps a bounded number of numbered
// backups, optionally gzip compressed.
package logging
