package logger

import "time"

// LogSessionStart logs the beginning of a fresh extraction session.
func LogSessionStart(sessionID, target string) {
	GetLogger().InfoWithFields("session started", map[string]interface{}{
		"session_id": sessionID,
		"target":     target,
		"action":     "session_start",
	})
}

// LogSessionResume logs a resume from checkpoint.
func LogSessionResume(sessionID, cursor string, collected int) {
	GetLogger().InfoWithFields("resuming session from checkpoint", map[string]interface{}{
		"session_id": sessionID,
		"cursor":     cursor,
		"collected":  collected,
		"action":     "session_resume",
	})
}

// LogPageFailure logs a page that could not be extracted and was
// recorded as a degradation annotation.
func LogPageFailure(sessionID, marker, reason string) {
	GetLogger().WarnWithFields("page extraction failed", map[string]interface{}{
		"session_id": sessionID,
		"marker":     marker,
		"reason":     reason,
		"action":     "page_failure",
	})
}

// LogCircuitOpen logs the breaker short-circuiting an operation class.
func LogCircuitOpen(operation string, cooldown time.Duration) {
	GetLogger().WarnWithFields("circuit breaker open", map[string]interface{}{
		"operation": operation,
		"cooldown":  cooldown,
		"action":    "circuit_open",
	})
}

// LogCorruptCheckpoint logs loudly that a checkpoint failed its
// integrity check and a fresh session is being started. This indicates
// prior data loss and must not pass silently.
func LogCorruptCheckpoint(sessionID string) {
	GetLogger().ErrorWithFields("checkpoint corrupt, starting fresh session", map[string]interface{}{
		"session_id": sessionID,
		"action":     "corrupt_checkpoint",
	})
}

// LogSessionComplete logs the terminal summary of a session.
func LogSessionComplete(sessionID, status string, collected, failedPages int, elapsed time.Duration) {
	GetLogger().InfoWithFields("session finished", map[string]interface{}{
		"session_id":   sessionID,
		"status":       status,
		"collected":    collected,
		"failed_pages": failedPages,
		"elapsed":      elapsed,
		"action":       "session_complete",
	})
}
