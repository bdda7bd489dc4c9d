package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/storage"
)

// Entry is one named file inside an archive.
type Entry struct {
	Name string
	Data []byte
}

// Archiver packs named entries under a single folder into archive bytes.
type Archiver interface {
	Pack(folder string, entries []Entry) ([]byte, error)
}

// ZipArchiver packs entries into a standard ZIP archive.
type ZipArchiver struct{}

// Pack writes every entry under folder/ and returns the ZIP bytes.
func (ZipArchiver) Pack(folder string, entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		w, err := zw.Create(folder + "/" + e.Name)
		if err != nil {
			return nil, fmt.Errorf("adding %s to archive: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("writing %s to archive: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// Builder assembles game archives from the recording index and blob store.
type Builder struct {
	blobs storage.BlobStore
	bank  *prompt.Bank
	arch  Archiver
}

// NewBuilder creates a Builder. A nil archiver defaults to ZIP.
func NewBuilder(blobs storage.BlobStore, bank *prompt.Bank, arch Archiver) *Builder {
	if arch == nil {
		arch = ZipArchiver{}
	}
	return &Builder{blobs: blobs, bank: bank, arch: arch}
}

// BuildArchive packages the game's recordings into one archive and returns
// the bytes plus a suggested download filename. Recordings whose media blob
// is gone are skipped; the archive always builds. A summary sheet listing
// every turn is added alongside the media files.
func (b *Builder) BuildArchive(game core.GameSession, recs []core.Recording) ([]byte, string, error) {
	folder := FolderName(game)
	entries := make([]Entry, 0, len(recs)+1)
	seen := make(map[string]int)

	for _, rec := range recs {
		data, err := b.blobs.Get(rec.BlobKey)
		if err != nil {
			slog.Warn("Failed to resolve recording blob", "recording", rec.Meta.ID, "error", err)
			continue
		}
		if data == nil {
			slog.Warn("Recording blob missing, skipping", "recording", rec.Meta.ID, "key", rec.BlobKey)
			continue
		}

		name := FileName(
			game.SeatName(rec.Meta.Seat),
			b.promptText(rec.Meta.PromptID),
			rec.Meta.Points,
			rec.Meta.MimeType,
			rec.Meta.Kind,
		)
		name = dedupe(name, seen)
		entries = append(entries, Entry{Name: name, Data: data})
	}

	if pdf, err := b.summarySheet(game, recs); err != nil {
		slog.Warn("Failed to render summary sheet", "error", err)
	} else {
		entries = append(entries, Entry{Name: "summary.pdf", Data: pdf})
	}

	archive, err := b.arch.Pack(folder, entries)
	if err != nil {
		return nil, "", fmt.Errorf("packing archive: %w", err)
	}
	return archive, folder + ".zip", nil
}

// BuildRecordingFile resolves one recording into a single named media file,
// for per-recording sharing. Returns a nil entry when the blob is gone.
func (b *Builder) BuildRecordingFile(game core.GameSession, rec core.Recording) (Entry, bool) {
	data, err := b.blobs.Get(rec.BlobKey)
	if err != nil || data == nil {
		slog.Warn("Recording blob unavailable", "recording", rec.Meta.ID, "error", err)
		return Entry{}, false
	}
	name := FileName(
		game.SeatName(rec.Meta.Seat),
		b.promptText(rec.Meta.PromptID),
		rec.Meta.Points,
		rec.Meta.MimeType,
		rec.Meta.Kind,
	)
	return Entry{Name: name, Data: data}, true
}

func (b *Builder) promptText(id string) string {
	if text, ok := b.bank.FindText(id); ok {
		return text
	}
	return id
}

// dedupe keeps file names unique inside one archive by numbering repeats.
func dedupe(name string, seen map[string]int) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i:]
		name = name[:i]
	}
	return fmt.Sprintf("%s (%d)%s", name, n+1, ext)
}
