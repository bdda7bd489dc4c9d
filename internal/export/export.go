// Package export assembles a game's recordings into a shareable archive.
package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/duetlabs/duet/internal/core"
)

const (
	// maxSegmentLen clamps each sanitized name segment so nested paths stay
	// well under filesystem limits.
	maxSegmentLen = 40
	// promptBudget is the character budget for prompt text inside a file name.
	promptBudget = 40

	fallbackName = "player"
)

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._\- ]`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// sanitize collapses whitespace runs to a single space and replaces
// characters outside [A-Za-z0-9._- ] with underscores. Whitespace collapses
// first so tabs and newlines become spaces instead of underscores.
func sanitize(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	s = unsafeChars.ReplaceAllString(s, "_")
	return strings.TrimSpace(s)
}

// SanitizeName makes s safe for use as a file or folder name segment,
// clamped to 40 characters. An empty result falls back to a placeholder.
func SanitizeName(s string) string {
	s = sanitize(s)
	if s == "" {
		return fallbackName
	}
	if r := []rune(s); len(r) > maxSegmentLen {
		s = strings.TrimSpace(string(r[:maxSegmentLen]))
	}
	return s
}

// Truncate cuts s to at most budget runes, marking the cut with an ellipsis.
func Truncate(s string, budget int) string {
	r := []rune(s)
	if len(r) <= budget {
		return s
	}
	return strings.TrimSpace(string(r[:budget])) + "..."
}

// ExtForMIME infers a file extension from the negotiated MIME type by
// substring matching, falling back to the capture kind's usual container.
// Plain MPEG audio maps to .mp3; "mp4" must be probed before "mpeg" so
// video/mp4 is not misread.
func ExtForMIME(mime string, kind core.CaptureKind) string {
	switch {
	case strings.Contains(mime, "mp4"):
		return ".mp4"
	case strings.Contains(mime, "webm"):
		return ".webm"
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "wav"):
		return ".wav"
	case strings.Contains(mime, "mpeg"):
		return ".mp3"
	}
	if kind == core.KindAudio {
		return ".ogg"
	}
	return ".webm"
}

// FolderName names the archive's top-level folder from both seat names and
// the game's start date. Deterministic: the same game always produces the
// same folder name.
func FolderName(game core.GameSession) string {
	return fmt.Sprintf("%s_vs_%s_%s",
		SanitizeName(game.Seat1Name),
		SanitizeName(game.Seat2Name),
		game.StartedAt.Format("2006-01-02"))
}

// FileName names one recording's media file from the speaker, the prompt
// text and the points the turn earned.
func FileName(seatName, promptText string, points int, mime string, kind core.CaptureKind) string {
	base := fmt.Sprintf("%s-%s (%dpts)",
		SanitizeName(seatName),
		Truncate(sanitize(promptText), promptBudget),
		points)
	return base + ExtForMIME(mime, kind)
}
