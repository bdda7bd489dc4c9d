package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/duetlabs/duet/internal/core"
)

// Sharer is the platform share sheet. The platform may reject files up
// front (capability probe) or mid-attempt; callers treat both the same.
type Sharer interface {
	CanShare(files []Entry) bool
	Share(ctx context.Context, files []Entry) error
}

// Saver triggers a direct local save of one file. This is the fallback that
// must always work once an archive exists.
type Saver interface {
	Save(name string, data []byte) error
}

// ShareOrDownload tries the platform share sheet first and falls back to a
// direct save when sharing is unavailable or fails. The returned error is
// non-nil only when the fallback itself failed.
func ShareOrDownload(ctx context.Context, sharer Sharer, saver Saver, name string, data []byte) error {
	files := []Entry{{Name: name, Data: data}}

	if sharer != nil && sharer.CanShare(files) {
		err := sharer.Share(ctx, files)
		if err == nil {
			return nil
		}
		slog.Info("Share failed, falling back to download", "file", name, "error", err)
	}

	if err := saver.Save(name, data); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}

// ShareGame builds the whole-game archive and runs it through the
// share-then-download flow.
func (b *Builder) ShareGame(ctx context.Context, sharer Sharer, saver Saver, game core.GameSession, recs []core.Recording) error {
	archive, name, err := b.BuildArchive(game, recs)
	if err != nil {
		return err
	}
	return ShareOrDownload(ctx, sharer, saver, name, archive)
}

// ShareRecording shares a single recording's media file, bypassing the
// archive. Some platforms cap share payload sizes, so a lone file can go
// through where the full archive cannot.
func (b *Builder) ShareRecording(ctx context.Context, sharer Sharer, saver Saver, game core.GameSession, rec core.Recording) error {
	file, ok := b.BuildRecordingFile(game, rec)
	if !ok {
		return fmt.Errorf("recording %s has no media", rec.Meta.ID)
	}
	return ShareOrDownload(ctx, sharer, saver, file.Name, file.Data)
}

// DirSaver saves files into a directory. The CLI's Saver.
type DirSaver struct {
	Dir string
}

// Save writes the file under the saver's directory, creating it if needed.
func (d DirSaver) Save(name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
