// Package lock implements cross-process mutual exclusion for the microphone.
//
// At most one voice session may record at a time across all processes on the
// machine. Ownership is represented by a JSON lock record written with an
// atomic exclusive-create, so two processes racing to book can never both
// succeed. Staleness is decided by OS process existence rather than a
// heartbeat: lock lifetimes are short (one recording), and a false "stale"
// call merely preempts an owner that would have released momentarily.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Record is the on-disk lock content identifying the current owner.
type Record struct {
	// PID is the owning process id.
	PID int `json:"pid"`

	// SessionID is the opaque identifier of the owning voice session.
	SessionID string `json:"sessionId"`

	// StartedAt is when the lock was created.
	StartedAt time.Time `json:"startedAt"`
}

// Status is a point-in-time read of the lock, with no side effects.
type Status struct {
	// Booked reports whether a valid (non-stale) lock exists.
	Booked bool

	// OwnedByUs reports whether the lock belongs to this process.
	OwnedByUs bool

	// Owner holds the lock record when Booked is true.
	Owner *Record
}

// BookResult describes the outcome of a successful Book call.
type BookResult int

const (
	// Acquired means this call created the lock.
	Acquired BookResult = iota

	// AlreadyOwned means this process already held the lock; the existing
	// record is left in place.
	AlreadyOwned
)

// BusyError is returned by Book when another live process owns the lock.
type BusyError struct {
	// Owner is the record of the current lock holder.
	Owner Record
}

// Error reports whose session holds the line and how long ago it started.
func (e *BusyError) Error() string {
	return fmt.Sprintf("voice session busy: owned by pid %d (session %q, started %s ago)",
		e.Owner.PID, e.Owner.SessionID, time.Since(e.Owner.StartedAt).Round(time.Second))
}

// Mutex is a file-backed cross-process mutex. The zero value is not usable;
// create one with New. Safe for concurrent use within a process only insofar
// as the underlying filesystem operations are atomic — callers coordinate one
// recording per process anyway.
type Mutex struct {
	path string

	// pid is overridable for tests; defaults to os.Getpid().
	pid int

	// alive is overridable for tests; defaults to processAlive.
	alive func(pid int) bool
}

// New creates a Mutex backed by the lock file at path.
func New(path string) *Mutex {
	return &Mutex{path: path, pid: os.Getpid(), alive: processAlive}
}

// Book attempts to take exclusive ownership for sessionID.
//
// Outcomes:
//   - (Acquired, nil): the lock was created by this call.
//   - (AlreadyOwned, nil): this process already holds the lock.
//   - (0, *BusyError): a live foreign process holds the lock.
//
// A lock whose owner process is dead is treated as stale: it is removed
// silently and booking is retried once.
func (m *Mutex) Book(sessionID string) (BookResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		created, err := m.tryCreate(sessionID)
		if err != nil {
			return 0, err
		}
		if created {
			return Acquired, nil
		}

		rec, err := m.read()
		if err != nil {
			// Unreadable or corrupt record: treat as stale and reclaim.
			slog.Warn("removing unreadable session lock", "path", m.path, "err", err)
			_ = os.Remove(m.path)
			continue
		}
		if rec.PID == m.pid {
			return AlreadyOwned, nil
		}
		if m.alive(rec.PID) {
			return 0, &BusyError{Owner: *rec}
		}

		slog.Debug("reclaiming stale session lock", "path", m.path, "owner_pid", rec.PID)
		_ = os.Remove(m.path)
	}
	return 0, fmt.Errorf("lock: could not book %q after stale-lock retry", m.path)
}

// Release removes the lock only if it is owned by this process. Releasing a
// foreign or absent lock is a no-op — never remove another session's lock.
func (m *Mutex) Release() error {
	rec, err := m.read()
	if err != nil {
		return nil
	}
	if rec.PID != m.pid {
		return nil
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lock: release %q: %w", m.path, err)
	}
	return nil
}

// Status reads the current lock state without modifying it. A stale lock
// reports Booked == false but still exposes the record via Owner.
func (m *Mutex) Status() Status {
	rec, err := m.read()
	if err != nil {
		return Status{}
	}
	return Status{
		Booked:    m.alive(rec.PID),
		OwnedByUs: rec.PID == m.pid,
		Owner:     rec,
	}
}

// tryCreate attempts the atomic exclusive-create write. Returns (false, nil)
// when the lock file already exists.
func (m *Mutex) tryCreate(sessionID string) (bool, error) {
	f, err := os.OpenFile(m.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock: create %q: %w", m.path, err)
	}
	defer f.Close()

	rec := Record{PID: m.pid, SessionID: sessionID, StartedAt: time.Now().UTC()}
	if err := json.NewEncoder(f).Encode(rec); err != nil {
		_ = os.Remove(m.path)
		return false, fmt.Errorf("lock: write %q: %w", m.path, err)
	}
	return true, nil
}

// read parses the lock record, returning an error for a missing or corrupt file.
func (m *Mutex) read() (*Record, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("lock: parse %q: %w", m.path, err)
	}
	return rec, nil
}
