// Package log provides structured trace capture for the airlock controller.
//
// This package defines the Logger interface and Event types for recording
// what the controller did, cycle by cycle: frames sent to the actuators,
// state machine transitions, emergency latch changes, procedure requests and
// errors. It is separate from operational logging (slog); a trace is a
// complete machine-readable record for post-incident analysis.
//
// # Basic Usage
//
//	// Console while developing
//	cfg.Trace = log.NewSlogAdapter(slog.Default())
//
//	// Binary file in production
//	cfg.Trace, _ = log.NewFileLogger("/var/log/airlock/run.atrace")
//
//	// Both, keeping per-frame events out of the console
//	cfg.Trace = log.Tee(fileLogger, log.Excluding(adapter, log.LayerLink))
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys.
// FileLogger buffers routine events and flushes emergencies and errors at
// once. The airlockd trace command views and summarizes the files.
package log
