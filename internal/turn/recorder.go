package turn

import "context"

// Recorder is the black-box device capture capability the controller drives.
// Implementations negotiate codecs and talk to real devices; the controller
// only cares about the lifecycle below.
//
// RequestAccess, Start and Stop are suspension points: user events (cancel,
// navigation) may arrive while they are in flight, so the controller
// re-checks flow liveness after each of them.
type Recorder interface {
	// RequestAccess acquires the capture device. An error means permission
	// was denied or no device is available; the controller surfaces it and
	// retries only on explicit user action.
	RequestAccess(ctx context.Context, wantVideo bool) error

	// Start begins capturing. Elapsed time resets to zero.
	Start(ctx context.Context) error

	// Stop ends capturing and returns the captured media bytes. A nil or
	// empty result means nothing usable was captured and the turn is
	// discarded.
	Stop(ctx context.Context) ([]byte, error)

	// ElapsedSeconds reports the capture's monotonic elapsed time. Resets
	// on Start.
	ElapsedSeconds() float64

	// MimeType reports the negotiated media MIME type.
	MimeType() string

	// SwitchCamera swaps the video input, best effort. It replaces only the
	// video track on the open stream, never opening a second one.
	SwitchCamera(ctx context.Context) error

	// Release tears the device down. Safe to call when idle; must be called
	// before leaving the turn flow so no camera indicator is leaked.
	Release()
}
