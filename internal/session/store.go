// Package session holds the authoritative game state and its transitions.
//
// All mutations go through named operations on Store; no external code reads
// then writes state outside them. Every operation persists the whole snapshot
// after the transition. Persistence failures are logged and swallowed: the
// in-memory state stays authoritative for the rest of the session.
package session

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/scoring"
	"github.com/duetlabs/duet/internal/storage"
)

// State is the persisted snapshot: one serialized record covering everything
// the store owns.
type State struct {
	Relationship  core.Relationship `json:"relationship"`
	Seat1         core.Player       `json:"seat1"`
	Seat2         core.Player       `json:"seat2"`
	PreferredKind core.CaptureKind  `json:"preferredKind"`
	StarScale     float64           `json:"starScale"`
	Recordings    []core.Recording  `json:"recordings"`
	HighScore     int               `json:"highScore"`
	CurrentGameID string            `json:"currentGameId"`
	Games         []core.GameSession `json:"games"`
}

func (s *State) player(seat core.Seat) *core.Player {
	if seat == core.Seat1 {
		return &s.Seat1
	}
	return &s.Seat2
}

// Store is the state container. Operations are atomic and total: well-formed
// transitions never fail.
type Store struct {
	mu      sync.Mutex
	state   State
	persist storage.StateStore
	blobs   storage.BlobStore
	now     func() time.Time
}

// New creates a store, loading the persisted snapshot through persist when
// one exists and synthesizing defaults otherwise. Either store may be nil
// (pure in-memory mode, no blob cascade).
func New(persist storage.StateStore, blobs storage.BlobStore) *Store {
	s := &Store{
		persist: persist,
		blobs:   blobs,
		now:     time.Now,
	}
	s.state = s.load()
	return s
}

func (s *Store) load() State {
	if s.persist != nil {
		data, err := s.persist.LoadState()
		if err != nil {
			slog.Warn("Failed to load persisted state, starting fresh", "error", err)
		} else if data != nil {
			var st State
			if err := json.Unmarshal(data, &st); err != nil {
				slog.Warn("Persisted state unreadable, starting fresh", "error", err)
			} else if st.Relationship.Valid() && len(st.Games) > 0 {
				if st.CurrentGameID == "" {
					st.CurrentGameID = st.Games[0].ID
				}
				return st
			}
		}
	}
	return defaultState(s.now())
}

func defaultState(now time.Time) State {
	rel := core.DefaultRelationship
	labels := core.Labels(rel)
	game := core.GameSession{
		ID:           core.GenerateID(),
		StartedAt:    now,
		Relationship: rel,
		Seat1Name:    labels.Seat1,
		Seat2Name:    labels.Seat2,
	}
	return State{
		Relationship:  rel,
		Seat1:         core.DefaultPlayer(core.Seat1, labels.Seat1),
		Seat2:         core.DefaultPlayer(core.Seat2, labels.Seat2),
		PreferredKind: core.KindVideo,
		StarScale:     scoring.DefaultScale,
		Games:         []core.GameSession{game},
		CurrentGameID: game.ID,
	}
}

// save persists the whole snapshot. Must be called with the lock held.
func (s *Store) save() {
	if s.persist == nil {
		return
	}
	data, err := json.Marshal(s.state)
	if err != nil {
		slog.Error("Failed to serialize state", "error", err)
		return
	}
	if err := s.persist.SaveState(data); err != nil {
		// Non-fatal: in-memory state stays authoritative.
		slog.Warn("Failed to persist state", "error", err)
	}
}

func (s *Store) deleteBlob(key string) {
	if s.blobs == nil || key == "" {
		return
	}
	if err := s.blobs.Delete(key); err != nil {
		slog.Warn("Failed to delete blob", "key", key, "error", err)
	}
}

// SetRelationship switches the active relationship mode. Seat names still at
// the previous mode's default are replaced with the new mode's label; custom
// names are kept. Role labels always follow the new mode.
func (s *Store) SetRelationship(rel core.Relationship) {
	if !rel.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := core.Labels(s.state.Relationship)
	next := core.Labels(rel)

	for _, seat := range []core.Seat{core.Seat1, core.Seat2} {
		p := s.state.player(seat)
		atDefault := p.Name == "" || p.Name == prev.For(seat)
		if atDefault {
			p.Name = next.For(seat)
		}
		p.Role = core.DefaultPlayer(seat, next.For(seat)).Role
	}
	s.state.Relationship = rel
	s.save()
}

// SetPlayer shallow-merges a patch into a seat. Empty names are allowed; the
// role label serves as the display fallback at render time, not here.
func (s *Store) SetPlayer(seat core.Seat, patch core.PlayerPatch) {
	if !seat.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.state.player(seat)
	*p = patch.Apply(*p)
	s.save()
}

// SwapPlayers exchanges the two seats' contents. Seat identity stays fixed.
func (s *Store) SwapPlayers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	p1, p2 := s.state.Seat1, s.state.Seat2
	p1.Seat, p2.Seat = core.Seat2, core.Seat1
	s.state.Seat1, s.state.Seat2 = p2, p1
	s.save()
}

// AddScore applies a score delta to a seat, clamped so the total never goes
// negative, and advances the high-score watermark.
func (s *Store) AddScore(seat core.Seat, delta int) {
	if !seat.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.state.player(seat)
	newScore := p.Score + delta
	if newScore < 0 {
		newScore = 0
	}
	p.Score = newScore
	if newScore > s.state.HighScore {
		s.state.HighScore = newScore
	}
	s.save()
}

// SetStarScale updates the star-timing calibration factor, clamped to its
// valid range.
func (s *Store) SetStarScale(scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.StarScale = scoring.ClampScale(scale)
	s.save()
}

// SetPreferredKind updates the capture-kind preference.
func (s *Store) SetPreferredKind(kind core.CaptureKind) {
	if !kind.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PreferredKind = kind
	s.save()
}

// StartNewGame creates a fresh game session snapshotting the current seat
// names and relationship, makes it current and resets scores. Recordings of
// prior games are untouched.
func (s *Store) StartNewGame() core.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	game := s.newGameLocked()
	s.state.Games = append([]core.GameSession{game}, s.state.Games...)
	s.state.CurrentGameID = game.ID
	s.state.Seat1.Score = 0
	s.state.Seat2.Score = 0
	s.state.HighScore = 0
	s.save()
	return game
}

// newGameLocked synthesizes a game from the current seats and mode.
func (s *Store) newGameLocked() core.GameSession {
	labels := core.Labels(s.state.Relationship)
	name1 := s.state.Seat1.Name
	if name1 == "" {
		name1 = labels.Seat1
	}
	name2 := s.state.Seat2.Name
	if name2 == "" {
		name2 = labels.Seat2
	}
	return core.GameSession{
		ID:           core.GenerateID(),
		StartedAt:    s.now(),
		Relationship: s.state.Relationship,
		Seat1Name:    name1,
		Seat2Name:    name2,
	}
}

// AddRecording prepends a recording. Scores are applied separately by the
// caller, after this returns, so a crash between the two writes never leaves
// a score without a backing recording.
func (s *Store) AddRecording(rec core.Recording) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Recordings = append([]core.Recording{rec}, s.state.Recordings...)
	s.save()
}

// RemoveRecording deletes one recording and its blob.
func (s *Store) RemoveRecording(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.state.Recordings[:0]
	for _, r := range s.state.Recordings {
		if r.Meta.ID == id {
			s.deleteBlob(r.BlobKey)
			continue
		}
		kept = append(kept, r)
	}
	s.state.Recordings = kept
	s.save()
}

// DeleteGame removes a game, cascading to its recordings and their blobs.
// The store never ends up with zero games: deleting the sole remaining game
// synthesizes a replacement inside the same transition.
func (s *Store) DeleteGame(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	games := s.state.Games[:0]
	for _, g := range s.state.Games {
		if g.ID != gameID {
			games = append(games, g)
		}
	}
	s.state.Games = games

	kept := s.state.Recordings[:0]
	for _, r := range s.state.Recordings {
		if r.Meta.GameID == gameID {
			s.deleteBlob(r.BlobKey)
			continue
		}
		kept = append(kept, r)
	}
	s.state.Recordings = kept

	if s.state.CurrentGameID == gameID {
		if len(s.state.Games) > 0 {
			s.state.CurrentGameID = s.state.Games[0].ID
		} else {
			game := s.newGameLocked()
			s.state.Games = []core.GameSession{game}
			s.state.CurrentGameID = game.ID
		}
	}
	s.save()
}

// ResetGame restores both seats to their relationship-mode defaults and wipes
// every recording (and its blob). The game list itself is kept.
func (s *Store) ResetGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := core.Labels(s.state.Relationship)
	s.state.Seat1 = core.DefaultPlayer(core.Seat1, labels.Seat1)
	s.state.Seat2 = core.DefaultPlayer(core.Seat2, labels.Seat2)
	for _, r := range s.state.Recordings {
		s.deleteBlob(r.BlobKey)
	}
	s.state.Recordings = nil
	s.state.HighScore = 0
	s.save()
}

// ResetScores zeroes both seats' scores and the high-score watermark.
func (s *Store) ResetScores() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Seat1.Score = 0
	s.state.Seat2.Score = 0
	s.state.HighScore = 0
	s.save()
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Recordings = append([]core.Recording(nil), s.state.Recordings...)
	out.Games = append([]core.GameSession(nil), s.state.Games...)
	return out
}

// Player returns a copy of one seat's content.
func (s *Store) Player(seat core.Seat) core.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state.player(seat)
}

// Relationship returns the active relationship mode.
func (s *Store) Relationship() core.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Relationship
}

// PreferredKind returns the capture-kind preference.
func (s *Store) PreferredKind() core.CaptureKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PreferredKind
}

// StarScale returns the star-timing calibration factor.
func (s *Store) StarScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.StarScale
}

// HighScore returns the session's high-score watermark.
func (s *Store) HighScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.HighScore
}

// CurrentGame returns the active game session.
func (s *Store) CurrentGame() (core.GameSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.state.Games {
		if g.ID == s.state.CurrentGameID {
			return g, true
		}
	}
	return core.GameSession{}, false
}

// CurrentGameID returns the active game's ID.
func (s *Store) CurrentGameID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentGameID
}

// Games returns a copy of the game list, newest first.
func (s *Store) Games() []core.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.GameSession(nil), s.state.Games...)
}

// Game looks up a game by ID.
func (s *Store) Game(id string) (core.GameSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.state.Games {
		if g.ID == id {
			return g, true
		}
	}
	return core.GameSession{}, false
}

// Recordings returns a copy of the full recording list, newest first.
func (s *Store) Recordings() []core.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Recording(nil), s.state.Recordings...)
}

// RecordingsForGame returns the recordings belonging to one game, newest
// first.
func (s *Store) RecordingsForGame(gameID string) []core.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Recording
	for _, r := range s.state.Recordings {
		if r.Meta.GameID == gameID {
			out = append(out, r)
		}
	}
	return out
}

// Recording looks up one recording by ID.
func (s *Store) Recording(id string) (core.Recording, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.state.Recordings {
		if r.Meta.ID == id {
			return r, true
		}
	}
	return core.Recording{}, false
}
