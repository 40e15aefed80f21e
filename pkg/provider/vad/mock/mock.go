// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame probabilities and inspect the frames that
// were submitted for classification.
//
// Example:
//
//	sess := &mock.Session{Results: []vad.Result{{Probability: 0.9, Speech: true}}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/voicewire/voicewire/pkg/provider/vad"
)

// NewSessionCall records a single invocation of Engine.NewSession.
type NewSessionCall struct {
	// Cfg is the Config passed to NewSession.
	Cfg vad.Config
}

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the Session returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.Session

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records every call to NewSession in order.
	NewSessionCalls []NewSessionCall
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, NewSessionCall{Cfg: cfg})
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// ClassifyCall records a single invocation of Session.Classify.
type ClassifyCall struct {
	// Frame is a copy of the bytes passed to Classify.
	Frame []byte
}

// Session is a mock implementation of vad.Session. Classify consumes Results
// in order; once exhausted it keeps returning the final entry (or a zero
// Result when Results is empty), which makes "speech then endless silence"
// scripts trivial to express.
type Session struct {
	mu sync.Mutex

	// Results is the scripted sequence of classification outcomes.
	Results []vad.Result

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ClassifyCalls records every call to Classify in order.
	ClassifyCalls []ClassifyCall

	// ResetCallCount is the number of times Reset was called.
	ResetCallCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	next int
}

// Classify records the call and returns the next scripted Result.
func (s *Session) Classify(frame []byte) (vad.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.ClassifyCalls = append(s.ClassifyCalls, ClassifyCall{Frame: cp})
	if s.ClassifyErr != nil {
		return vad.Result{}, s.ClassifyErr
	}
	if len(s.Results) == 0 {
		return vad.Result{}, nil
	}
	r := s.Results[min(s.next, len(s.Results)-1)]
	s.next++
	return r, nil
}

// Reset records the call by incrementing ResetCallCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCallCount++
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// ResetCalls clears all recorded call history and the script position.
// Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ClassifyCalls = nil
	s.ResetCallCount = 0
	s.CloseCallCount = 0
	s.next = 0
}

// Ensure Session implements vad.Session at compile time.
var _ vad.Session = (*Session)(nil)
