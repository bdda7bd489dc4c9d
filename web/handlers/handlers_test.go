package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/duetlabs/duet/internal/core"
	"github.com/duetlabs/duet/internal/prompt"
	"github.com/duetlabs/duet/internal/session"
	"github.com/duetlabs/duet/internal/storage"
	"github.com/duetlabs/duet/internal/turn"
)

type grantAllRecorder struct {
	data []byte
}

func (g *grantAllRecorder) RequestAccess(ctx context.Context, wantVideo bool) error { return nil }
func (g *grantAllRecorder) Start(ctx context.Context) error                         { return nil }
func (g *grantAllRecorder) Stop(ctx context.Context) ([]byte, error)                { return g.data, nil }
func (g *grantAllRecorder) ElapsedSeconds() float64                                 { return 50 }
func (g *grantAllRecorder) MimeType() string                                        { return "video/webm" }
func (g *grantAllRecorder) SwitchCamera(ctx context.Context) error                  { return nil }
func (g *grantAllRecorder) Release()                                                {}

func setupHandler(t *testing.T) (*Handler, *session.Store, *storage.MemoryBlobStore) {
	t.Helper()
	blobs := storage.NewMemoryBlobStore()
	store := session.New(storage.NewMemoryStateStore(), blobs)
	ctrl := turn.New(store, prompt.Default(), &grantAllRecorder{data: []byte("clip")}, blobs, turn.Options{
		CountdownFrom: 1,
		TickInterval:  2 * time.Millisecond,
	})
	t.Cleanup(func() { ctrl.Close(context.Background()) })
	return New(store, ctrl, prompt.Default(), blobs), store, blobs
}

func doRequest(t *testing.T, h *Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestStateEndpoint(t *testing.T) {
	h, _, _ := setupHandler(t)

	rr := doRequest(t, h, http.MethodGet, "/api/state", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp struct {
		Relationship core.Relationship `json:"relationship"`
		Turn         struct {
			State    string `json:"state"`
			NextSeat string `json:"nextSeat"`
		} `json:"turn"`
	}
	decodeJSON(t, rr, &resp)

	if resp.Relationship != core.RelKidParent {
		t.Errorf("Expected default relationship, got %q", resp.Relationship)
	}
	if resp.Turn.State != "ready" || resp.Turn.NextSeat != "seat1" {
		t.Errorf("Unexpected turn status %+v", resp.Turn)
	}
}

func TestSetRelationship(t *testing.T) {
	h, store, _ := setupHandler(t)

	rr := doRequest(t, h, http.MethodPut, "/api/relationship", `{"relationship":"friend-friend"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if store.Relationship() != core.RelFriendFriend {
		t.Errorf("Relationship not applied")
	}

	rr = doRequest(t, h, http.MethodPut, "/api/relationship", `{"relationship":"enemies"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown relationship, got %d", rr.Code)
	}
}

func TestUpdatePlayer(t *testing.T) {
	h, store, _ := setupHandler(t)

	rr := doRequest(t, h, http.MethodPut, "/api/players/seat1", `{"name":"Max"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if got := store.Player(core.Seat1).Name; got != "Max" {
		t.Errorf("Expected name Max, got %q", got)
	}

	rr = doRequest(t, h, http.MethodPut, "/api/players/seat9", `{"name":"X"}`)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown seat, got %d", rr.Code)
	}
}

func TestTurnFlowOverHTTP(t *testing.T) {
	h, store, _ := setupHandler(t)

	rr := doRequest(t, h, http.MethodPost, "/api/turn/start", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("StartTurn failed: %d %s", rr.Code, rr.Body.String())
	}

	// Wait for the countdown to hand over to recording.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var resp struct {
			Turn struct {
				State string `json:"state"`
			} `json:"turn"`
		}
		decodeJSON(t, doRequest(t, h, http.MethodGet, "/api/state", ""), &resp)
		if resp.Turn.State == "recording" {
			break
		}
		time.Sleep(time.Millisecond)
	}

	rr = doRequest(t, h, http.MethodPost, "/api/turn/stop", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("StopTurn failed: %d %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Recording core.RecordingMeta `json:"recording"`
	}
	decodeJSON(t, rr, &resp)
	if resp.Recording.Points != 3 {
		t.Errorf("Expected 3 points for a 50s turn, got %d", resp.Recording.Points)
	}
	if store.Player(core.Seat1).Score != 3 {
		t.Errorf("Score not applied")
	}

	// Stop again without a live capture: conflict.
	rr = doRequest(t, h, http.MethodPost, "/api/turn/stop", "")
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for stop while idle, got %d", rr.Code)
	}
}

func TestGameArchiveDownload(t *testing.T) {
	h, store, blobs := setupHandler(t)

	key, _ := blobs.Put([]byte("media"))
	game, _ := store.CurrentGame()
	store.AddRecording(core.Recording{
		Meta: core.RecordingMeta{
			ID:       "r1",
			GameID:   game.ID,
			Seat:     core.Seat1,
			PromptID: prompt.MakeID(core.RelKidParent, core.Seat2, 1),
			Points:   3,
			Kind:     core.KindVideo,
			MimeType: "video/webm",
		},
		BlobKey: key,
	})

	rr := doRequest(t, h, http.MethodGet, "/api/games/"+game.ID+"/archive", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Archive download failed: %d %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected zip content type, got %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, ".zip") {
		t.Errorf("Expected attachment disposition, got %q", cd)
	}

	if _, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len())); err != nil {
		t.Errorf("Response is not a readable archive: %v", err)
	}

	rr = doRequest(t, h, http.MethodGet, "/api/games/nope/archive", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown game, got %d", rr.Code)
	}
}

func TestRecordingMedia(t *testing.T) {
	h, store, blobs := setupHandler(t)

	key, _ := blobs.Put([]byte("media-bytes"))
	store.AddRecording(core.Recording{
		Meta: core.RecordingMeta{
			ID:       "r1",
			GameID:   store.CurrentGameID(),
			Seat:     core.Seat1,
			MimeType: "video/webm",
			Kind:     core.KindVideo,
		},
		BlobKey: key,
	})

	rr := doRequest(t, h, http.MethodGet, "/api/recordings/r1/media", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("Media fetch failed: %d", rr.Code)
	}
	if rr.Body.String() != "media-bytes" {
		t.Errorf("Unexpected media body %q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "video/webm" {
		t.Errorf("Expected recording MIME type, got %q", ct)
	}

	// Evict the blob: media is gone but the entry remains.
	blobs.Delete(key)
	rr = doRequest(t, h, http.MethodGet, "/api/recordings/r1/media", "")
	if rr.Code != http.StatusGone {
		t.Errorf("Expected 410 for evicted media, got %d", rr.Code)
	}
}

func TestDeleteGameNeverLeavesZeroGames(t *testing.T) {
	h, store, _ := setupHandler(t)

	only := store.CurrentGameID()
	rr := doRequest(t, h, http.MethodDelete, "/api/games/"+only, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("DeleteGame failed: %d", rr.Code)
	}

	var resp struct {
		CurrentGameID string             `json:"currentGameId"`
		Games         []core.GameSession `json:"games"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Games) != 1 {
		t.Fatalf("Expected a synthesized replacement game, got %d games", len(resp.Games))
	}
	if resp.CurrentGameID == only {
		t.Errorf("Expected a fresh current game id")
	}
}
