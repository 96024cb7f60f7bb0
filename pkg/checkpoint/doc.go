// Package checkpoint provides durable session state persistence with
// integrity verification.
//
// Each session owns exactly one record on disk, keyed by a session ID
// derived deterministically from the target and output destination.
// Saves are atomic (write-to-temp then rename) and serialized, so a
// save from an interruption handler can never corrupt a concurrent
// periodic save. Every record carries an integrity tag over its body;
// a mismatch on load surfaces ErrCorrupt rather than silently-wrong
// state.
package checkpoint
