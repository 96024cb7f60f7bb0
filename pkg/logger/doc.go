// Package logger provides structured logging built on zerolog.
//
// The Logger interface keeps call sites independent of the backend and
// lets tests swap in a capturing implementation. A global instance is
// initialized once from configuration and retrieved with GetLogger.
package logger
