package music

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ariahq/aria/internal/catalog"
	"github.com/ariahq/aria/internal/proposal"
	"github.com/ariahq/aria/internal/tools"
)

func testTools(t *testing.T) map[string]tools.Tool {
	t.Helper()
	cat := catalog.NewMemory(
		[]catalog.Track{
			{ID: "t1", Title: "Ocean Waves", Artist: "Aria Ensemble"},
			{ID: "t2", Title: "Morning Rain", Artist: "Stillwater"},
		},
		[]catalog.Collection{
			{ID: "c1", Title: "Calm Reflections", TrackIDs: []string{"t2", "t1"}},
		},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	byName := make(map[string]tools.Tool)
	for _, tl := range All(cat, logger) {
		byName[tl.Name()] = tl
	}
	return byName
}

func TestSearchTracks(t *testing.T) {
	tool := testTools(t)["search_tracks"]

	res, err := tool.Execute(context.Background(), map[string]any{"query": "ocean"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(res.Output), &out); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("expected 1 match, got %d", out.Count)
	}
	if res.Proposal != nil {
		t.Error("query tools must not carry proposals")
	}
}

func TestSearchTracks_MissingQuery(t *testing.T) {
	tool := testTools(t)["search_tracks"]
	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Error("expected error for missing query")
	}
}

func TestProposePlayback(t *testing.T) {
	tool := testTools(t)["propose_playback"]
	if !tool.RequiresApproval() {
		t.Fatal("playback proposals must require approval")
	}

	res, err := tool.Execute(context.Background(), map[string]any{
		"action":       "play",
		"search_query": "ocean waves",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	pb, ok := res.Proposal.(proposal.Playback)
	if !ok {
		t.Fatalf("expected proposal.Playback, got %T", res.Proposal)
	}
	if pb.TrackID != "t1" {
		t.Errorf("expected resolved track t1, got %q", pb.TrackID)
	}
	if !strings.Contains(res.Output, `"approvalRequired":true`) {
		t.Errorf("output must declare approvalRequired: %s", res.Output)
	}
}

func TestProposePlayback_UnknownAction(t *testing.T) {
	tool := testTools(t)["propose_playback"]
	if _, err := tool.Execute(context.Background(), map[string]any{"action": "skip"}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestProposeQueue_CollectionOrder(t *testing.T) {
	tool := testTools(t)["propose_queue"]
	res, err := tool.Execute(context.Background(), map[string]any{
		"collection": "calm reflections",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	q, ok := res.Proposal.(proposal.QueueSet)
	if !ok {
		t.Fatalf("expected proposal.QueueSet, got %T", res.Proposal)
	}
	want := []string{"t2", "t1"}
	if len(q.TrackIDs) != 2 || q.TrackIDs[0] != want[0] || q.TrackIDs[1] != want[1] {
		t.Errorf("expected collection order %v, got %v", want, q.TrackIDs)
	}
}

func TestProposePlaylist_RequiresName(t *testing.T) {
	tool := testTools(t)["propose_playlist"]
	_, err := tool.Execute(context.Background(), map[string]any{
		"action":    "create",
		"track_ids": []any{"t1"},
	})
	if err == nil {
		t.Error("expected error for missing name")
	}
}

func TestProposeSurface(t *testing.T) {
	tool := testTools(t)["propose_surface"]
	res, err := tool.Execute(context.Background(), map[string]any{
		"action":     "open-tab",
		"target_tab": "library",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	s, ok := res.Proposal.(proposal.Surface)
	if !ok {
		t.Fatalf("expected proposal.Surface, got %T", res.Proposal)
	}
	if s.TargetTab != "library" {
		t.Errorf("expected target tab library, got %q", s.TargetTab)
	}
}
