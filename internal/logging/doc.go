// Package logging provides structured logging for soundmachine components.
//
// This package wraps Go's log/slog to write JSON lines, one file per
// component (launcher, player, rfid, visualizer, sync), under the state
// directory of the work directory. The launcher and every worker log to the
// same directory so that `soundmachine logs` can merge and filter them.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/home/pi/sound-machine/.soundmachine/logs", "player", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("playing tag", "tag", "0008479619")
//
// # Context Propagation
//
//	workerLogger := logger.WithWorker("audio").WithSession("audio-player")
//	workerLogger.Warn("session already gone")
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"session already gone","component":"launcher","worker":"audio","session":"audio-player"}
//
// # Log Rotation
//
// Workers run for weeks on a small SD card, so files rotate by size:
//
//	logger, err := logging.NewLoggerWithRotation(dir, "rfid", "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// Rotated files are named rfid.log.1, rfid.log.2, and so on (.gz when compressed).
//
// # Aggregation
//
// [AggregateLogs] reads every component log in a directory, [FilterLogs]
// narrows the entries and [FormatText] renders them for a terminal.
//
// # Testing
//
// Use [NopLogger] to discard output.
package logging
