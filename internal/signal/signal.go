// Package signal implements the cross-process cooperative controls that work
// without a live channel connection: a stop marker file whose mere presence
// means "end the current recording or playback", and a discovery record at a
// well-known path advertising the active session so an observer process can
// find it without prior configuration.
//
// The stop marker is filesystem-polled rather than pushed because the process
// raising it is an independent OS process, not a sibling goroutine — a
// context cancellation cannot cross that boundary.
package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stop is a file-backed cooperative stop flag.
type Stop struct {
	path string
}

// NewStop returns a Stop backed by the marker file at path.
func NewStop(path string) *Stop {
	return &Stop{path: path}
}

// Raised reports whether the marker currently exists. Absence is the normal
// state.
func (s *Stop) Raised() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Raise creates the marker. Idempotent.
func (s *Stop) Raise() error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("signal: raise %q: %w", s.path, err)
	}
	return f.Close()
}

// Clear removes the marker. Clearing an absent marker is a no-op. Call this
// before starting a recording so a stray pre-existing marker cannot end it.
func (s *Stop) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("signal: clear %q: %w", s.path, err)
	}
	return nil
}

// Discovery advertises the current session's channel address and signal paths
// at a fixed, well-known location.
type Discovery struct {
	// SocketPath is the unix socket of the observer event channel.
	SocketPath string `json:"socket_path"`

	// StopPath is the stop marker the session polls.
	StopPath string `json:"stop_path"`

	// PID is the session process id.
	PID int `json:"pid"`

	// SessionID is the opaque session identifier.
	SessionID string `json:"session_id"`

	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`
}

// PublishDiscovery writes rec atomically to path (temp file + rename), so a
// concurrent reader never sees a half-written record.
func PublishDiscovery(path string, rec Discovery) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("signal: marshal discovery: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".discovery-*")
	if err != nil {
		return fmt.Errorf("signal: temp discovery file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("signal: write discovery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("signal: close discovery: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("signal: publish discovery %q: %w", path, err)
	}
	return nil
}

// ReadDiscovery loads the record at path.
func ReadDiscovery(path string) (*Discovery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rec := &Discovery{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("signal: parse discovery %q: %w", path, err)
	}
	return rec, nil
}

// RemoveDiscovery deletes the record; removing an absent record is a no-op.
func RemoveDiscovery(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("signal: remove discovery %q: %w", path, err)
	}
	return nil
}
