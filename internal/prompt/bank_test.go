package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/duetlabs/duet/internal/core"
)

func TestDefaultBankNonEmpty(t *testing.T) {
	b := Default()
	for _, rel := range core.Relationships() {
		for _, side := range []core.Seat{core.Seat1, core.Seat2} {
			if len(b.Prompts(rel, side)) == 0 {
				t.Errorf("empty prompt list for %s/%s", rel, side)
			}
		}
	}
}

func TestPromptIDsStableAndParseable(t *testing.T) {
	b := Default()
	for _, rel := range core.Relationships() {
		for _, side := range []core.Seat{core.Seat1, core.Seat2} {
			for i, p := range b.Prompts(rel, side) {
				want := MakeID(rel, side, i+1)
				if p.ID != want {
					t.Fatalf("id mismatch at %s/%s[%d]: got %s, want %s", rel, side, i, p.ID, want)
				}
				gotRel, gotSide, ord, ok := ParseID(p.ID)
				if !ok {
					t.Fatalf("ParseID(%s) failed", p.ID)
				}
				if gotRel != rel || gotSide != side || ord != i+1 {
					t.Fatalf("ParseID(%s) = (%s, %s, %d)", p.ID, gotRel, gotSide, ord)
				}
			}
		}
	}
}

func TestRandomForStaysInList(t *testing.T) {
	b := Default()
	for _, rel := range core.Relationships() {
		for _, side := range []core.Seat{core.Seat1, core.Seat2} {
			for i := 0; i < 50; i++ {
				p, err := b.RandomFor(rel, side)
				if err != nil {
					t.Fatalf("RandomFor(%s, %s): %v", rel, side, err)
				}
				gotRel, gotSide, _, ok := ParseID(p.ID)
				if !ok || gotRel != rel || gotSide != side {
					t.Fatalf("RandomFor(%s, %s) returned prompt %s from another list", rel, side, p.ID)
				}
			}
		}
	}
}

func TestForSpeakerInvertsSide(t *testing.T) {
	b := Default()
	for i := 0; i < 50; i++ {
		p, err := b.ForSpeaker(core.RelKidParent, core.Seat1)
		if err != nil {
			t.Fatalf("ForSpeaker: %v", err)
		}
		_, side, _, ok := ParseID(p.ID)
		if !ok || side != core.Seat2 {
			t.Fatalf("speaker seat1 should answer seat2's questions, got %s", p.ID)
		}
	}
}

func TestFindText(t *testing.T) {
	b := Default()
	p := b.Prompts(core.RelFriendFriend, core.Seat2)[0]

	text, ok := b.FindText(p.ID)
	if !ok || text != p.Text {
		t.Errorf("FindText(%s) = (%q, %v), want (%q, true)", p.ID, text, ok, p.Text)
	}

	if _, ok := b.FindText("kid-parent:seat1:999"); ok {
		t.Error("FindText should miss on unknown ordinal")
	}
	if _, ok := b.FindText("garbage"); ok {
		t.Error("FindText should miss on malformed id")
	}
}

func TestAppendFileExtendsWithoutRebaking(t *testing.T) {
	b := Default()
	before := b.Prompts(core.RelKidParent, core.Seat1)

	extra := `kid-parent:
  seat1:
    - text: "What's a brand-new question?"
      bucket: extra
`
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.yaml")
	if err := os.WriteFile(path, []byte(extra), 0644); err != nil {
		t.Fatal(err)
	}

	if err := b.AppendFile(path); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}

	after := b.Prompts(core.RelKidParent, core.Seat1)
	if len(after) != len(before)+1 {
		t.Fatalf("expected %d prompts, got %d", len(before)+1, len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("existing id changed after append: %s -> %s", before[i].ID, after[i].ID)
		}
	}
	added := after[len(after)-1]
	if added.ID != MakeID(core.RelKidParent, core.Seat1, len(after)) {
		t.Errorf("appended prompt got id %s", added.ID)
	}
	if added.Bucket != "extra" {
		t.Errorf("appended prompt bucket = %q", added.Bucket)
	}
}
