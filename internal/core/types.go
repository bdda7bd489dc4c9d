// Package core contains the core domain types for duet.
package core

import (
	"strings"
	"time"
)

// Seat identifies one of the two fixed player slots. Seat identity never
// changes; names, avatars and scores move between seats (see SwapPlayers).
type Seat string

const (
	Seat1 Seat = "seat1"
	Seat2 Seat = "seat2"
)

// Other returns the opposite seat.
func (s Seat) Other() Seat {
	if s == Seat1 {
		return Seat2
	}
	return Seat1
}

// Valid reports whether s is one of the two known seats.
func (s Seat) Valid() bool {
	return s == Seat1 || s == Seat2
}

// Relationship selects which prompt sub-bank and which role labels apply
// to the two seats.
type Relationship string

const (
	RelKidParent        Relationship = "kid-parent"
	RelAdultChildParent Relationship = "adultchild-parent"
	RelFriendFriend     Relationship = "friend-friend"
	RelKidGrandparent   Relationship = "kid-grandparent"
)

// Relationships returns all relationship modes in definition order.
func Relationships() []Relationship {
	return []Relationship{RelKidParent, RelAdultChildParent, RelFriendFriend, RelKidGrandparent}
}

// DefaultRelationship is the mode used when nothing is persisted.
const DefaultRelationship = RelKidParent

// Valid reports whether r is a known relationship mode.
func (r Relationship) Valid() bool {
	for _, known := range Relationships() {
		if r == known {
			return true
		}
	}
	return false
}

// RoleLabels holds the display labels the relationship assigns to each seat.
type RoleLabels struct {
	Seat1 string
	Seat2 string
}

// For returns the label for the given seat.
func (l RoleLabels) For(seat Seat) string {
	if seat == Seat1 {
		return l.Seat1
	}
	return l.Seat2
}

var roleLabels = map[Relationship]RoleLabels{
	RelKidParent:        {Seat1: "Kid", Seat2: "Parent"},
	RelAdultChildParent: {Seat1: "Adult Child", Seat2: "Parent"},
	RelFriendFriend:     {Seat1: "Friend A", Seat2: "Friend B"},
	RelKidGrandparent:   {Seat1: "Kid", Seat2: "Grandparent"},
}

// Labels returns the role labels for a relationship mode. Unknown modes fall
// back to the default relationship's labels.
func Labels(r Relationship) RoleLabels {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return roleLabels[DefaultRelationship]
}

// CaptureKind is the recording mode for a turn.
type CaptureKind string

const (
	KindAudio CaptureKind = "audio"
	KindVideo CaptureKind = "video"
)

// Valid reports whether k is a known capture kind.
func (k CaptureKind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// Player is the content of one seat: display name, role label, optional
// avatar reference and the running score.
type Player struct {
	Seat      Seat   `json:"seat"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarRef string `json:"avatarRef,omitempty"`
	Score     int    `json:"score"`
}

// DefaultPlayer returns the seat's default content for a role label:
// name equals the label, role is its lowercase form, score zero.
func DefaultPlayer(seat Seat, label string) Player {
	return Player{
		Seat: seat,
		Name: label,
		Role: strings.ToLower(label),
	}
}

// PlayerPatch is a partial update to a seat. Nil fields are left untouched.
type PlayerPatch struct {
	Name      *string `json:"name,omitempty"`
	AvatarRef *string `json:"avatarRef,omitempty"`
	Score     *int    `json:"score,omitempty"`
}

// Apply merges the patch into a player and returns the result.
func (p PlayerPatch) Apply(player Player) Player {
	if p.Name != nil {
		player.Name = *p.Name
	}
	if p.AvatarRef != nil {
		player.AvatarRef = *p.AvatarRef
	}
	if p.Score != nil {
		player.Score = *p.Score
	}
	return player
}

// GameSession is one played sitting. It is never mutated after creation;
// recordings reference it by ID.
type GameSession struct {
	ID           string       `json:"id"`
	StartedAt    time.Time    `json:"startedAt"`
	Relationship Relationship `json:"relationship"`
	Seat1Name    string       `json:"seat1Name"`
	Seat2Name    string       `json:"seat2Name"`
}

// SeatName returns the name snapshotted for the given seat at game start.
func (g GameSession) SeatName(seat Seat) string {
	if seat == Seat1 {
		return g.Seat1Name
	}
	return g.Seat2Name
}

// RecordingMeta describes one captured turn. The media bytes live in the
// blob store; only the key is carried here.
type RecordingMeta struct {
	ID          string      `json:"id"`
	GameID      string      `json:"gameId"`
	Seat        Seat        `json:"seat"`
	PromptID    string      `json:"promptId"`
	Bucket      string      `json:"bucket"`
	StartedAt   time.Time   `json:"startedAt"`
	StoppedAt   time.Time   `json:"stoppedAt"`
	DurationSec float64     `json:"durationSec"`
	Points      int         `json:"points"`
	Kind        CaptureKind `json:"kind"`
	MimeType    string      `json:"mimeType"`
}

// Recording is a recording's metadata plus its blob-store reference.
type Recording struct {
	Meta    RecordingMeta `json:"meta"`
	BlobKey string        `json:"blobKey"`
}
