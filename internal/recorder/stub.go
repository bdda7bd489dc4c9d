// Package recorder provides capture device implementations for the turn
// controller. Real capture lives in the browser client; this package covers
// environments without one.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/duetlabs/duet/internal/core"
)

// Stub is a Recorder that captures no real media. It tracks wall-clock
// elapsed time and returns a synthetic payload, so the whole turn flow,
// scoring, and export can run end to end without devices. Used by the CLI
// play mode and by manual testing.
type Stub struct {
	mu       sync.Mutex
	kind     core.CaptureKind
	granted  bool
	running  bool
	startAt  time.Time
	lastElap float64
}

// NewStub creates an idle stub recorder.
func NewStub() *Stub {
	return &Stub{}
}

// RequestAccess always grants.
func (s *Stub) RequestAccess(ctx context.Context, wantVideo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = true
	s.kind = core.KindAudio
	if wantVideo {
		s.kind = core.KindVideo
	}
	return nil
}

// Start begins timing a capture.
func (s *Stub) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.granted {
		return fmt.Errorf("capture device not acquired")
	}
	s.running = true
	s.startAt = time.Now()
	s.lastElap = 0
	return nil
}

// Stop ends the capture and returns a synthetic payload describing it.
func (s *Stub) Stop(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, nil
	}
	s.running = false
	s.lastElap = time.Since(s.startAt).Seconds()
	payload := fmt.Sprintf("stub %s capture, %.1fs", s.kind, s.lastElap)
	return []byte(payload), nil
}

// ElapsedSeconds reports time since Start, frozen at the last Stop.
func (s *Stub) ElapsedSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return time.Since(s.startAt).Seconds()
	}
	return s.lastElap
}

// MimeType reports a plausible container for the granted kind.
func (s *Stub) MimeType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == core.KindVideo {
		return "video/webm"
	}
	return "audio/ogg"
}

// SwitchCamera is a no-op.
func (s *Stub) SwitchCamera(ctx context.Context) error {
	return nil
}

// Release drops the grant.
func (s *Stub) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = false
	s.running = false
}
