package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/scoring"
	"github.com/duetlabs/duet/internal/session"
	"github.com/duetlabs/duet/internal/storage"
)

// State is the controller's position in the turn flow.
type State string

const (
	// StateReady shows the hand-off screen: the next seat is invited to
	// start their turn.
	StateReady State = "ready"
	// StateCountdown is the pre-roll countdown before capture starts.
	StateCountdown State = "countdown"
	// StateRecording means the capture device is live and the speaker is
	// answering their prompt.
	StateRecording State = "recording"
	// StateSummary is shown after both seats completed a turn back to back.
	StateSummary State = "summary"
	// StateEnded is the terminal choice screen: rematch, new game, or done.
	StateEnded State = "ended"
)

var (
	// ErrInvalidState means the requested transition is not legal from the
	// current state.
	ErrInvalidState = errors.New("invalid turn state for this action")
	// ErrNothingCaptured means the capture produced no usable media. The
	// turn did not happen: no recording is kept and no points are awarded.
	ErrNothingCaptured = errors.New("nothing captured")
	// ErrCancelled means the flow was cancelled while an async step was in
	// flight and its result was discarded.
	ErrCancelled = errors.New("turn cancelled")
	// ErrRecordingActive rejects actions that must not interrupt a live
	// capture, such as changing the relationship mode.
	ErrRecordingActive = errors.New("recording in progress")
)

const (
	// DefaultCountdownFrom is the starting value of the pre-roll countdown.
	DefaultCountdownFrom = 3
	// DefaultTickInterval is the wall-clock length of one countdown step.
	DefaultTickInterval = time.Second

	celebrationDuration = 3 * time.Second
	pairWindow          = 2
)

// Options tunes the controller. Zero values select the defaults, which are
// what the interactive UI uses; tests shrink the tick interval.
type Options struct {
	CountdownFrom int
	TickInterval  time.Duration

	// OnTick is called with the remaining count at every countdown step,
	// including the initial full value. Called outside the controller lock.
	OnTick func(remaining int)
	// OnCelebrate fires when a turn pushes a seat's total past the session
	// high-score watermark.
	OnCelebrate func(seat core.Seat, total int)
	// OnError receives failures from the async countdown task, which has no
	// caller to return them to.
	OnError func(err error)
}

// Controller runs the turn flow state machine for one device shared by both
// players. All methods are safe for concurrent use.
type Controller struct {
	store *session.Store
	bank  *prompt.Bank
	rec   Recorder
	blobs storage.BlobStore
	opts  Options
	now   func() time.Time

	// flowCtx outlives any single caller. The countdown and capture run on
	// it so they are not torn down when the request that started the turn
	// completes; only Close cancels it.
	flowCtx    context.Context
	flowCancel context.CancelFunc

	mu          sync.Mutex
	state       State
	next        core.Seat
	active      core.Seat
	current     prompt.Prompt
	hasPrompt   bool
	count       int
	pair        []core.Seat
	gen         int
	starting    bool
	celebrating bool
	celebTimer  *time.Timer
}

// New builds a controller in StateReady with Seat1 up first.
func New(store *session.Store, bank *prompt.Bank, rec Recorder, blobs storage.BlobStore, opts Options) *Controller {
	if opts.CountdownFrom <= 0 {
		opts.CountdownFrom = DefaultCountdownFrom
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		store:      store,
		bank:       bank,
		rec:        rec,
		blobs:      blobs,
		opts:       opts,
		now:        time.Now,
		flowCtx:    ctx,
		flowCancel: cancel,
		state:      StateReady,
		next:       core.Seat1,
	}
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// NextSeat returns the seat invited to take the next turn.
func (c *Controller) NextSeat() core.Seat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// ActiveSeat returns the seat currently mid-turn, or "" when idle.
func (c *Controller) ActiveSeat() core.Seat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// CurrentPrompt returns the prompt drawn for the turn in progress, or the
// most recently completed one while the summary screen shows it.
func (c *Controller) CurrentPrompt() (prompt.Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.hasPrompt
}

// Countdown returns the remaining pre-roll count, zero when not counting.
func (c *Controller) Countdown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Celebrating reports whether a high-score celebration is showing.
func (c *Controller) Celebrating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.celebrating
}

// StartTurn acquires the capture device and, once granted, kicks off the
// countdown. It blocks for the device grant so a permission denial is
// returned synchronously and the flow stays in StateReady.
func (c *Controller) StartTurn(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateReady || c.starting {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.starting = true
	myGen := c.gen
	wantVideo := c.store.PreferredKind() == core.KindVideo
	c.mu.Unlock()

	err := c.rec.RequestAccess(ctx, wantVideo)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("capture access: %w", err)
	}
	if c.gen != myGen || c.state != StateReady {
		c.mu.Unlock()
		c.rec.Release()
		return ErrCancelled
	}
	c.state = StateCountdown
	c.count = c.opts.CountdownFrom
	c.active = c.next
	c.mu.Unlock()

	c.notifyTick(c.opts.CountdownFrom)
	go c.runCountdown(myGen)
	return nil
}

func (c *Controller) runCountdown(myGen int) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.flowCtx.Done():
			c.abortCountdown(myGen)
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.gen != myGen || c.state != StateCountdown {
			c.mu.Unlock()
			return
		}
		c.count--
		remaining := c.count
		c.mu.Unlock()

		c.notifyTick(remaining)
		if remaining <= 0 {
			c.beginRecording(myGen)
			return
		}
	}
}

// abortCountdown cleans up a countdown whose controller was closed before it
// finished. A gen mismatch means Cancel already handled the teardown.
func (c *Controller) abortCountdown(myGen int) {
	c.mu.Lock()
	live := c.gen == myGen && c.state == StateCountdown
	c.mu.Unlock()
	if live {
		c.fail(myGen, ErrCancelled)
	}
}

func (c *Controller) beginRecording(myGen int) {
	c.mu.Lock()
	if c.gen != myGen || c.state != StateCountdown {
		c.mu.Unlock()
		return
	}
	speaker := c.active
	rel := c.store.Relationship()
	c.mu.Unlock()

	// The speaker answers a prompt drawn from the opposite seat's list.
	p, err := c.bank.ForSpeaker(rel, speaker)
	if err != nil {
		c.fail(myGen, fmt.Errorf("drawing prompt: %w", err))
		return
	}

	if err := c.rec.Start(c.flowCtx); err != nil {
		c.fail(myGen, fmt.Errorf("starting capture: %w", err))
		return
	}

	c.mu.Lock()
	if c.gen != myGen || c.state != StateCountdown {
		c.mu.Unlock()
		return
	}
	c.state = StateRecording
	c.current = p
	c.hasPrompt = true
	c.count = 0
	c.mu.Unlock()
}

// fail aborts a mid-flight turn back to StateReady and reports the error.
func (c *Controller) fail(myGen int, err error) {
	slog.Warn("Turn aborted", "error", err)

	c.mu.Lock()
	if c.gen == myGen {
		c.state = StateReady
		c.active = ""
		c.count = 0
	}
	c.mu.Unlock()
	c.rec.Release()

	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

// RetryCapture restarts the capture after a stop that produced no usable
// media. Only legal while still in StateRecording.
func (c *Controller) RetryCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.mu.Unlock()

	if err := c.rec.Start(ctx); err != nil {
		return fmt.Errorf("restarting capture: %w", err)
	}
	return nil
}

// StopTurn ends the capture, persists the recording, awards points, and
// advances the flow. When both seats have just completed a turn the flow
// moves to StateSummary, otherwise back to StateReady with the other seat up.
func (c *Controller) StopTurn(ctx context.Context) (core.RecordingMeta, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return core.RecordingMeta{}, ErrInvalidState
	}
	myGen := c.gen
	speaker := c.active
	p := c.current
	c.mu.Unlock()

	elapsed := c.rec.ElapsedSeconds()
	mime := c.rec.MimeType()
	data, err := c.rec.Stop(ctx)
	if err != nil {
		slog.Warn("Capture stop failed", "error", err)
		return core.RecordingMeta{}, fmt.Errorf("%w: %v", ErrNothingCaptured, err)
	}
	if len(data) == 0 {
		return core.RecordingMeta{}, ErrNothingCaptured
	}

	c.mu.Lock()
	if c.gen != myGen || c.state != StateRecording {
		c.mu.Unlock()
		return core.RecordingMeta{}, ErrCancelled
	}
	c.mu.Unlock()

	key, err := c.blobs.Put(data)
	if err != nil {
		// The turn still counts; the media is just not replayable.
		slog.Warn("Failed to persist media blob", "error", err)
		key = ""
	}

	points := scoring.PointsForDuration(elapsed, c.store.StarScale())
	stopped := c.now()
	started := stopped.Add(-time.Duration(math.Round(elapsed*1000)) * time.Millisecond)

	meta := core.RecordingMeta{
		ID:          core.GenerateID(),
		GameID:      c.store.CurrentGameID(),
		Seat:        speaker,
		PromptID:    p.ID,
		Bucket:      p.Bucket,
		StartedAt:   started,
		StoppedAt:   stopped,
		DurationSec: elapsed,
		Points:      points,
		Kind:        c.store.PreferredKind(),
		MimeType:    mime,
	}

	preHigh := c.store.HighScore()
	c.store.AddRecording(core.Recording{Meta: meta, BlobKey: key})
	c.store.AddScore(speaker, points)
	if total := c.store.Player(speaker).Score; total > preHigh {
		c.celebrate(speaker, total)
	}

	c.mu.Lock()
	if c.gen == myGen && c.state == StateRecording {
		c.pair = append(c.pair, speaker)
		if len(c.pair) > pairWindow {
			c.pair = c.pair[len(c.pair)-pairWindow:]
		}
		if len(c.pair) == pairWindow && c.pair[0] != c.pair[1] {
			c.pair = c.pair[:0]
			c.state = StateSummary
		} else {
			c.state = StateReady
		}
		c.next = speaker.Other()
		c.active = ""
	}
	c.mu.Unlock()

	return meta, nil
}

func (c *Controller) celebrate(seat core.Seat, total int) {
	c.mu.Lock()
	c.celebrating = true
	if c.celebTimer != nil {
		c.celebTimer.Stop()
	}
	c.celebTimer = time.AfterFunc(celebrationDuration, func() {
		c.mu.Lock()
		c.celebrating = false
		c.mu.Unlock()
	})
	c.mu.Unlock()

	if c.opts.OnCelebrate != nil {
		c.opts.OnCelebrate(seat, total)
	}
}

// Cancel aborts whatever is in flight and returns to StateReady. Any async
// step still running (device grant, countdown, stop) notices the generation
// bump and discards its result.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	wasRecording := c.state == StateRecording
	c.state = StateReady
	c.active = ""
	c.count = 0
	c.pair = c.pair[:0]
	c.hasPrompt = false
	c.mu.Unlock()

	if wasRecording {
		if _, err := c.rec.Stop(ctx); err != nil {
			slog.Debug("Stop during cancel", "error", err)
		}
	}
	c.rec.Release()
}

// Continue dismisses the summary screen back to StateReady; the seat that did
// not just speak is up next.
func (c *Controller) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSummary {
		return ErrInvalidState
	}
	c.state = StateReady
	return nil
}

// End moves from the summary to the terminal choice screen.
func (c *Controller) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSummary {
		return ErrInvalidState
	}
	c.state = StateEnded
	return nil
}

// Rematch restarts play with the same players and game: scores go back to
// zero, recordings are kept, Seat1 is up first.
func (c *Controller) Rematch() error {
	c.mu.Lock()
	if c.state != StateEnded {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StateReady
	c.next = core.Seat1
	c.pair = c.pair[:0]
	c.hasPrompt = false
	c.mu.Unlock()

	c.store.ResetScores()
	return nil
}

// NewGame wipes the session back to defaults and leaves the turn flow.
func (c *Controller) NewGame() error {
	c.mu.Lock()
	if c.state != StateEnded {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StateReady
	c.next = core.Seat1
	c.pair = c.pair[:0]
	c.hasPrompt = false
	c.mu.Unlock()

	c.store.ResetGame()
	c.rec.Release()
	return nil
}

// Finish leaves the turn flow without resetting anything; scores and
// recordings stay as they are for review.
func (c *Controller) Finish() error {
	c.mu.Lock()
	if c.state != StateEnded {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StateReady
	c.next = core.Seat1
	c.pair = c.pair[:0]
	c.hasPrompt = false
	c.mu.Unlock()

	c.rec.Release()
	return nil
}

// SwitchCamera swaps the video input on the live stream.
func (c *Controller) SwitchCamera(ctx context.Context) error {
	c.mu.Lock()
	ok := c.state == StateCountdown || c.state == StateRecording
	c.mu.Unlock()
	if !ok {
		return ErrInvalidState
	}
	if err := c.rec.SwitchCamera(ctx); err != nil {
		return fmt.Errorf("switching camera: %w", err)
	}
	return nil
}

// ChangeRelationship switches the relationship mode between turns. Rejected
// while a capture is live so a drawn prompt never mismatches the mode.
func (c *Controller) ChangeRelationship(rel core.Relationship) error {
	if !rel.Valid() {
		return fmt.Errorf("unknown relationship %q", rel)
	}

	c.mu.Lock()
	if c.state == StateRecording {
		c.mu.Unlock()
		return ErrRecordingActive
	}
	c.mu.Unlock()

	c.store.SetRelationship(rel)
	return nil
}

// Close tears the controller down, cancelling any in-flight turn.
func (c *Controller) Close(ctx context.Context) {
	c.Cancel(ctx)
	c.flowCancel()
	c.mu.Lock()
	if c.celebTimer != nil {
		c.celebTimer.Stop()
	}
	c.mu.Unlock()
}

func (c *Controller) notifyTick(remaining int) {
	if c.opts.OnTick != nil {
		c.opts.OnTick(remaining)
	}
}
