// Package log provides the node's structured logging built on zerolog.
//
// A single global logger is initialized once at startup via Init; packages
// derive child loggers with WithComponent, WithRequestID, or WithJobID so
// every line carries enough context to trace a request through the
// lifecycle. Console output is human-readable by default and JSON when
// configured; an optional rotating file copy (lumberjack) can be enabled
// for unattended deployments.
package log
