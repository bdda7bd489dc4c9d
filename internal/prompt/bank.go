// Package prompt provides the relationship and side keyed prompt bank.
//
// Each (relationship, side) pair maps to an ordered list of prompts whose IDs
// are baked once from list position ({relationship}:{side}:{NNN}). IDs stay
// stable across restarts as long as list order is fixed, so historic
// recordings keep valid references.
package prompt

import (
	_ "embed"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/duetlabs/duet/internal/core"
)

//go:embed prompts.yaml
var defaultBankYAML []byte

// Prompt is one immutable question entry.
type Prompt struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Bucket string `json:"bucket"`
}

type rawEntry struct {
	Text   string `yaml:"text"`
	Bucket string `yaml:"bucket"`
}

type rawSides struct {
	Seat1 []rawEntry `yaml:"seat1"`
	Seat2 []rawEntry `yaml:"seat2"`
}

// Bank is the baked prompt collection.
type Bank struct {
	lists map[core.Relationship]map[core.Seat][]Prompt
}

// MakeID builds a prompt ID from relationship, side and 1-based ordinal.
func MakeID(rel core.Relationship, side core.Seat, ordinal int) string {
	return fmt.Sprintf("%s:%s:%03d", rel, side, ordinal)
}

// ParseID splits a prompt ID back into its (relationship, side, ordinal)
// parts. ok is false when the ID does not follow the baked format.
func ParseID(id string) (rel core.Relationship, side core.Seat, ordinal int, ok bool) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return "", "", 0, false
	}
	rel = core.Relationship(parts[0])
	side = core.Seat(parts[1])
	n, err := strconv.Atoi(parts[2])
	if err != nil || !rel.Valid() || !side.Valid() || n < 1 {
		return "", "", 0, false
	}
	return rel, side, n, true
}

// Parse bakes a bank from YAML data.
func Parse(data []byte) (*Bank, error) {
	var raw map[core.Relationship]rawSides
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt bank: %w", err)
	}

	b := &Bank{lists: make(map[core.Relationship]map[core.Seat][]Prompt)}
	for rel, sides := range raw {
		if !rel.Valid() {
			return nil, fmt.Errorf("unknown relationship %q in prompt bank", rel)
		}
		b.lists[rel] = map[core.Seat][]Prompt{}
		b.appendEntries(rel, core.Seat1, sides.Seat1)
		b.appendEntries(rel, core.Seat2, sides.Seat2)
	}
	return b, nil
}

// Default returns the compiled-in bank. The embedded data is part of the
// build, so a parse failure is a programming error.
func Default() *Bank {
	b, err := Parse(defaultBankYAML)
	if err != nil {
		panic(fmt.Sprintf("prompt: embedded bank invalid: %v", err))
	}
	return b
}

// AppendFile loads an extra YAML bank file and appends its entries after the
// existing lists. Appended prompts get the next ordinals, so built-in IDs are
// unaffected.
func (b *Bank) AppendFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prompt bank %s: %w", path, err)
	}
	var raw map[core.Relationship]rawSides
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse prompt bank %s: %w", path, err)
	}
	for rel, sides := range raw {
		if !rel.Valid() {
			return fmt.Errorf("unknown relationship %q in %s", rel, path)
		}
		if b.lists[rel] == nil {
			b.lists[rel] = map[core.Seat][]Prompt{}
		}
		b.appendEntries(rel, core.Seat1, sides.Seat1)
		b.appendEntries(rel, core.Seat2, sides.Seat2)
	}
	return nil
}

func (b *Bank) appendEntries(rel core.Relationship, side core.Seat, entries []rawEntry) {
	list := b.lists[rel][side]
	for _, e := range entries {
		list = append(list, Prompt{
			ID:     MakeID(rel, side, len(list)+1),
			Text:   e.Text,
			Bucket: e.Bucket,
		})
	}
	b.lists[rel][side] = list
}

// RandomFor returns a uniformly random prompt from the given side's list.
// Repeats across calls are allowed.
func (b *Bank) RandomFor(rel core.Relationship, side core.Seat) (Prompt, error) {
	list := b.lists[rel][side]
	if len(list) == 0 {
		return Prompt{}, fmt.Errorf("no prompts for %s/%s", rel, side)
	}
	return list[rand.Intn(len(list))], nil
}

// ForSpeaker draws the prompt the given speaker should answer. The asker's
// list becomes the answerer's question set, so the lookup side is the seat
// opposite the speaker.
func (b *Bank) ForSpeaker(rel core.Relationship, speaker core.Seat) (Prompt, error) {
	return b.RandomFor(rel, speaker.Other())
}

// FindText looks a prompt's text up by ID, scanning every relationship and
// side. A recording may reference a prompt that no longer exists in the
// bank, so a miss is an expected result.
func (b *Bank) FindText(id string) (string, bool) {
	for _, sides := range b.lists {
		for _, list := range sides {
			for _, p := range list {
				if p.ID == id {
					return p.Text, true
				}
			}
		}
	}
	return "", false
}

// Prompts returns a copy of the list for one relationship and side.
func (b *Bank) Prompts(rel core.Relationship, side core.Seat) []Prompt {
	list := b.lists[rel][side]
	out := make([]Prompt, len(list))
	copy(out, list)
	return out
}
