package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"lnscraper/pkg/logger"
)

// Status is the lifecycle status of a session. Transitions only move
// forward; a completed or failed session never becomes active again
// without an explicit fresh start.
type Status string

const (
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// CanTransition reports whether a status change is a legal forward move.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusActive:
		return to == StatusCompleted || to == StatusInterrupted || to == StatusFailed
	case StatusInterrupted:
		// Resuming an interrupted session reactivates it.
		return to == StatusActive
	default:
		return false
	}
}

// Terminal reports whether the status ends the session for good.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SessionState is the unit of durability: everything needed to resume
// an extraction session after interruption.
type SessionState struct {
	SessionID        string    `json:"session_id"`
	Target           string    `json:"target"`
	Cursor           string    `json:"cursor"`
	CollectedCount   int       `json:"collected_count"`
	AttemptedCount   int       `json:"attempted_count"`
	ErrorCount       int       `json:"error_count"`
	Status           Status    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	LastCheckpointAt time.Time `json:"last_checkpoint_at"`
	IntegrityTag     string    `json:"integrity_tag"`
}

// SessionID derives a stable session identifier from the target and
// output destination, so re-running the same job resumes the same
// session.
func SessionID(target, outputPath string) string {
	h := xxhash.New()
	h.WriteString(target)
	h.Write([]byte{0})
	h.WriteString(outputPath)
	return fmt.Sprintf("%016x", h.Sum64())
}

// computeTag digests the canonical form of a record: sorted-key JSON of
// the whole document with the integrity_tag field cleared. Hashing the
// document rather than the struct keeps fields written by future
// versions covered by the tag instead of failing verification here.
func computeTag(doc []byte) (string, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(doc, &body); err != nil {
		return "", fmt.Errorf("failed to parse state body: %w", err)
	}
	delete(body, "integrity_tag")

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to serialize state body: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// Sentinel errors surfaced by Load.
var (
	// ErrNotFound means no checkpoint exists for the session.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt means a checkpoint exists but its integrity tag does
	// not match its body. Corrupt checkpoints are never returned as
	// partially-valid state.
	ErrCorrupt = errors.New("checkpoint integrity check failed")
)

// Store persists session state, one record per session, with atomic
// writes and integrity verification on load.
type Store struct {
	dir    string
	logger logger.Logger

	// Serializes saves so an interruption-handler save can never
	// interleave with the main loop's periodic save.
	mu sync.Mutex
}

// NewStore creates a checkpoint store rooted at dir, creating the
// directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.GetLogger(),
	}, nil
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.session.json", sessionID))
}

// Save writes the state atomically: either the new checkpoint fully
// lands or the previous one is left intact.
func (s *Store) Save(state *SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state.LastCheckpointAt = time.Now().UTC()

	state.IntegrityTag = ""
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize state body: %w", err)
	}
	tag, err := computeTag(body)
	if err != nil {
		return err
	}
	state.IntegrityTag = tag

	path := s.path(state.SessionID)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(state); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	s.logger.DebugWithFields("checkpoint saved", map[string]interface{}{
		"session_id": state.SessionID,
		"status":     string(state.Status),
		"collected":  state.CollectedCount,
		"cursor":     state.Cursor,
	})

	return nil
}

// Load reads and verifies the checkpoint for a session. It returns
// ErrNotFound when no record exists and ErrCorrupt when the integrity
// tag does not match the recomputed digest. Unknown fields from future
// writers are ignored, not rejected.
func (s *Store) Load(sessionID string) (*SessionState, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// The tag covers the raw document, unknown fields included.
	expected, err := computeTag(data)
	if err != nil {
		return nil, err
	}
	if state.IntegrityTag != expected {
		return nil, ErrCorrupt
	}

	s.logger.InfoWithFields("checkpoint loaded", map[string]interface{}{
		"session_id": state.SessionID,
		"target":     state.Target,
		"collected":  state.CollectedCount,
		"status":     string(state.Status),
		"updated_at": state.LastCheckpointAt,
	})

	return &state, nil
}

// Delete removes the checkpoint record for a session.
func (s *Store) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint deleted")
	return nil
}

// Exists checks whether a checkpoint record exists for a session.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.path(sessionID))
	return err == nil
}

// List returns every readable session record in the store. Corrupt
// records are skipped; callers wanting to surface corruption load the
// specific session.
func (s *Store) List() ([]*SessionState, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.session.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint directory: %w", err)
	}

	var sessions []*SessionState
	for _, path := range matches {
		id := filepath.Base(path)
		id = id[:len(id)-len(".session.json")]
		state, err := s.Load(id)
		if err != nil {
			s.logger.WithError(err).WithField("path", path).Warn("skipping unreadable session record")
			continue
		}
		sessions = append(sessions, state)
	}
	return sessions, nil
}

// DefaultDir returns the per-OS data directory for checkpoint records.
func DefaultDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "lnscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "lnscraper")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "lnscraper")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "lnscraper")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return filepath.Join(dataDir, "checkpoints"), nil
}
