package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/storage"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Max", "Max"},
		{"unsafe characters", "Anna/Lena: *star*", "Anna_Lena_ _star_"},
		{"collapses whitespace", "a   b\t c", "a b c"},
		{"empty falls back", "", "player"},
		{"only unsafe falls back to underscores", "???", "___"},
		{"clamped to 40", strings.Repeat("x", 60), strings.Repeat("x", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtForMIME(t *testing.T) {
	tests := []struct {
		mime string
		kind core.CaptureKind
		want string
	}{
		{"video/mp4", core.KindVideo, ".mp4"},
		{"video/webm;codecs=vp9,opus", core.KindVideo, ".webm"},
		{"audio/ogg;codecs=opus", core.KindAudio, ".ogg"},
		{"audio/wav", core.KindAudio, ".wav"},
		{"audio/mpeg", core.KindAudio, ".mp3"},
		{"application/octet-stream", core.KindVideo, ".webm"},
		{"application/octet-stream", core.KindAudio, ".ogg"},
	}

	for _, tt := range tests {
		if got := ExtForMIME(tt.mime, tt.kind); got != tt.want {
			t.Errorf("ExtForMIME(%q, %q) = %q, want %q", tt.mime, tt.kind, got, tt.want)
		}
	}
}

func TestNamingIsDeterministic(t *testing.T) {
	game := core.GameSession{
		ID:           "g1",
		StartedAt:    time.Date(2024, 3, 9, 15, 4, 0, 0, time.UTC),
		Relationship: core.RelKidParent,
		Seat1Name:    "Max",
		Seat2Name:    "Anna & Lena",
	}

	if got := FolderName(game); got != "Max_vs_Anna _ Lena_2024-03-09" {
		t.Errorf("Unexpected folder name %q", got)
	}

	got := FileName("Max", "What made you laugh hardest this week, and why did it stick with you?", 3, "video/webm", core.KindVideo)
	want := "Max-What made you laugh hardest this week_ a... (3pts).webm"
	if got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}

	// Same inputs, same name.
	if again := FileName("Max", "What made you laugh hardest this week, and why did it stick with you?", 3, "video/webm", core.KindVideo); again != got {
		t.Errorf("FileName not deterministic: %q vs %q", again, got)
	}
}

func testGame() core.GameSession {
	return core.GameSession{
		ID:           "g1",
		StartedAt:    time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		Relationship: core.RelKidParent,
		Seat1Name:    "Max",
		Seat2Name:    "Papa",
	}
}

func testRecording(id string, seat core.Seat, key string) core.Recording {
	return core.Recording{
		Meta: core.RecordingMeta{
			ID:          id,
			GameID:      "g1",
			Seat:        seat,
			PromptID:    prompt.MakeID(core.RelKidParent, seat.Other(), 1),
			Bucket:      "funny",
			DurationSec: 42,
			Points:      2,
			Kind:        core.KindVideo,
			MimeType:    "video/webm",
		},
		BlobKey: key,
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f.Name, err)
		}
		out[f.Name] = content
	}
	return out
}

func TestBuildArchive(t *testing.T) {
	blobs := storage.NewMemoryBlobStore()
	k1, _ := blobs.Put([]byte("take one"))
	k2, _ := blobs.Put([]byte("take two"))

	builder := NewBuilder(blobs, prompt.Default(), nil)
	game := testGame()
	recs := []core.Recording{
		testRecording("r1", core.Seat1, k1),
		testRecording("r2", core.Seat2, k2),
	}

	archive, name, err := builder.BuildArchive(game, recs)
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}
	if name != "Max_vs_Papa_2024-03-09.zip" {
		t.Errorf("Unexpected archive name %q", name)
	}

	files := readZip(t, archive)
	if len(files) != 3 {
		t.Fatalf("Expected 2 media files plus summary, got %d: %v", len(files), keys(files))
	}

	var mediaSeen int
	for name, content := range files {
		if !strings.HasPrefix(name, "Max_vs_Papa_2024-03-09/") {
			t.Errorf("Entry %q not under the game folder", name)
		}
		if strings.HasSuffix(name, ".webm") {
			mediaSeen++
			if string(content) != "take one" && string(content) != "take two" {
				t.Errorf("Unexpected media content in %q", name)
			}
		}
	}
	if mediaSeen != 2 {
		t.Errorf("Expected 2 media entries, got %d", mediaSeen)
	}

	pdf, ok := files["Max_vs_Papa_2024-03-09/summary.pdf"]
	if !ok {
		t.Fatalf("Missing summary sheet, entries: %v", keys(files))
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("Summary sheet is not a PDF")
	}
}

func TestBuildArchiveSkipsMissingBlob(t *testing.T) {
	blobs := storage.NewMemoryBlobStore()
	k1, _ := blobs.Put([]byte("still here"))

	builder := NewBuilder(blobs, prompt.Default(), nil)
	recs := []core.Recording{
		testRecording("r1", core.Seat1, k1),
		testRecording("r2", core.Seat2, "rec-evicted"),
	}

	archive, _, err := builder.BuildArchive(testGame(), recs)
	if err != nil {
		t.Fatalf("BuildArchive must not fail on a missing blob: %v", err)
	}

	files := readZip(t, archive)
	var media int
	for name := range files {
		if strings.HasSuffix(name, ".webm") {
			media++
		}
	}
	if media != 1 {
		t.Errorf("Expected the missing recording omitted, got %d media files", media)
	}
}

func TestBuildArchiveDeduplicatesNames(t *testing.T) {
	blobs := storage.NewMemoryBlobStore()
	k1, _ := blobs.Put([]byte("a"))
	k2, _ := blobs.Put([]byte("b"))

	builder := NewBuilder(blobs, prompt.Default(), nil)
	recs := []core.Recording{
		testRecording("r1", core.Seat1, k1),
		testRecording("r2", core.Seat1, k2), // same seat, same prompt, same points
	}

	archive, _, err := builder.BuildArchive(testGame(), recs)
	if err != nil {
		t.Fatalf("BuildArchive failed: %v", err)
	}

	files := readZip(t, archive)
	var media []string
	for name := range files {
		if strings.HasSuffix(name, ".webm") {
			media = append(media, name)
		}
	}
	if len(media) != 2 {
		t.Fatalf("Expected both identically-named recordings kept, got %v", media)
	}
	if media[0] == media[1] {
		t.Errorf("Expected distinct entry names, both %q", media[0])
	}
}

type fakeSharer struct {
	canShare bool
	err      error
	calls    int
}

func (f *fakeSharer) CanShare(files []Entry) bool { return f.canShare }

func (f *fakeSharer) Share(ctx context.Context, files []Entry) error {
	f.calls++
	return f.err
}

type memSaver struct {
	saved map[string][]byte
	err   error
}

func (m *memSaver) Save(name string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string][]byte)
	}
	m.saved[name] = data
	return nil
}

func TestShareOrDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("share succeeds", func(t *testing.T) {
		sharer := &fakeSharer{canShare: true}
		saver := &memSaver{}
		if err := ShareOrDownload(ctx, sharer, saver, "a.zip", []byte("x")); err != nil {
			t.Fatalf("ShareOrDownload failed: %v", err)
		}
		if sharer.calls != 1 {
			t.Errorf("Expected one share attempt, got %d", sharer.calls)
		}
		if len(saver.saved) != 0 {
			t.Errorf("Fallback must not run when sharing worked")
		}
	})

	t.Run("capability probe rejects", func(t *testing.T) {
		sharer := &fakeSharer{canShare: false}
		saver := &memSaver{}
		if err := ShareOrDownload(ctx, sharer, saver, "a.zip", []byte("x")); err != nil {
			t.Fatalf("ShareOrDownload failed: %v", err)
		}
		if sharer.calls != 0 {
			t.Errorf("Share must not be attempted after a probe rejection")
		}
		if string(saver.saved["a.zip"]) != "x" {
			t.Errorf("Expected download fallback to save the file")
		}
	})

	t.Run("share attempt fails", func(t *testing.T) {
		sharer := &fakeSharer{canShare: true, err: errors.New("share aborted")}
		saver := &memSaver{}
		if err := ShareOrDownload(ctx, sharer, saver, "a.zip", []byte("x")); err != nil {
			t.Fatalf("ShareOrDownload failed: %v", err)
		}
		if string(saver.saved["a.zip"]) != "x" {
			t.Errorf("Expected download fallback after share failure")
		}
	})

	t.Run("no sharer at all", func(t *testing.T) {
		saver := &memSaver{}
		if err := ShareOrDownload(ctx, nil, saver, "a.zip", []byte("x")); err != nil {
			t.Fatalf("ShareOrDownload failed: %v", err)
		}
		if string(saver.saved["a.zip"]) != "x" {
			t.Errorf("Expected direct save without a sharer")
		}
	})

	t.Run("fallback failure surfaces", func(t *testing.T) {
		saver := &memSaver{err: errors.New("disk full")}
		if err := ShareOrDownload(ctx, nil, saver, "a.zip", []byte("x")); err == nil {
			t.Fatal("Expected an error when the fallback fails")
		}
	})
}

func TestShareRecordingSingleFile(t *testing.T) {
	blobs := storage.NewMemoryBlobStore()
	key, _ := blobs.Put([]byte("clip"))
	builder := NewBuilder(blobs, prompt.Default(), nil)

	sharer := &fakeSharer{canShare: false}
	saver := &memSaver{}
	rec := testRecording("r1", core.Seat1, key)

	if err := builder.ShareRecording(context.Background(), sharer, saver, testGame(), rec); err != nil {
		t.Fatalf("ShareRecording failed: %v", err)
	}
	if len(saver.saved) != 1 {
		t.Fatalf("Expected one saved file, got %d", len(saver.saved))
	}
	for name, content := range saver.saved {
		if !strings.HasPrefix(name, "Max-") || !strings.HasSuffix(name, " (2pts).webm") {
			t.Errorf("Unexpected single-file name %q", name)
		}
		if string(content) != "clip" {
			t.Errorf("Unexpected media content %q", content)
		}
	}

	if err := builder.ShareRecording(context.Background(), sharer, saver, testGame(), testRecording("r2", core.Seat1, "rec-gone")); err == nil {
		t.Error("Expected an error for a recording whose blob is gone")
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
