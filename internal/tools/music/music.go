// Package music implements the catalog query tools and the proposal tools.
// Query tools are read-only; proposal tools return an inert, approval-gated
// action description and never mutate playback state themselves.
package music

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ariahq/aria/internal/catalog"
	"github.com/ariahq/aria/internal/proposal"
	"github.com/ariahq/aria/internal/tools"
)

// All returns the full music tool set over the given catalog.
func All(cat catalog.Catalog, logger *slog.Logger) []tools.Tool {
	resolver := proposal.NewResolver(cat, logger)
	return []tools.Tool{
		&searchTracksTool{catalog: cat},
		&listCollectionsTool{catalog: cat},
		&proposePlaybackTool{resolver: resolver},
		&proposeQueueTool{resolver: resolver},
		&proposePlaylistTool{resolver: resolver},
		&proposeSurfaceTool{resolver: resolver},
	}
}

func marshalOutput(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":"marshaling output: %v"}`, err)
	}
	return string(out)
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func stringSliceParam(params map[string]any, key string) []string {
	raw, ok := params[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func refsFromParams(params map[string]any) proposal.TrackRefs {
	return proposal.TrackRefs{
		IDs:        stringSliceParam(params, "track_ids"),
		Titles:     stringSliceParam(params, "track_titles"),
		Collection: stringParam(params, "collection"),
	}
}

// --- search_tracks ---

type searchTracksTool struct {
	catalog catalog.Catalog
}

func (t *searchTracksTool) Name() string        { return "search_tracks" }
func (t *searchTracksTool) Description() string { return "Search the music catalog by track title." }
func (t *searchTracksTool) RequiresApproval() bool {
	return false
}

func (t *searchTracksTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Track title or part of it"},
		},
		"required": []any{"query"},
	}
}

func (t *searchTracksTool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	query := stringParam(params, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	matches := t.catalog.TracksByTitle(query)
	return &tools.Result{
		Output:  marshalOutput(map[string]any{"tracks": matches, "count": len(matches)}),
		Success: true,
	}, nil
}

// --- list_collections ---

type listCollectionsTool struct {
	catalog catalog.Catalog
}

func (t *listCollectionsTool) Name() string { return "list_collections" }
func (t *listCollectionsTool) Description() string {
	return "List the available music collections (albums and mood playlists)."
}
func (t *listCollectionsTool) RequiresApproval() bool { return false }

func (t *listCollectionsTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *listCollectionsTool) Execute(_ context.Context, _ map[string]any) (*tools.Result, error) {
	cols := t.catalog.Collections()
	return &tools.Result{
		Output:  marshalOutput(map[string]any{"collections": cols, "count": len(cols)}),
		Success: true,
	}, nil
}

// --- propose_playback ---

type proposePlaybackTool struct {
	resolver *proposal.Resolver
}

func (t *proposePlaybackTool) Name() string { return "propose_playback" }
func (t *proposePlaybackTool) Description() string {
	return "Propose playing, pausing, or resuming a track. The user must approve before anything plays."
}
func (t *proposePlaybackTool) RequiresApproval() bool { return true }

func (t *proposePlaybackTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"play", "pause", "resume"},
			},
			"search_query": map[string]any{
				"type":        "string",
				"description": "Track or collection to play. Required for play.",
			},
		},
		"required": []any{"action"},
	}
}

func (t *proposePlaybackTool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	action := proposal.PlaybackAction(stringParam(params, "action"))
	switch action {
	case proposal.PlaybackPlay, proposal.PlaybackPause, proposal.PlaybackResume:
	default:
		return nil, fmt.Errorf("unknown playback action %q", action)
	}

	p := t.resolver.ResolvePlayback(action, stringParam(params, "search_query"))
	return &tools.Result{
		Output:   marshalOutput(p),
		Success:  true,
		Proposal: p,
	}, nil
}

// --- propose_queue ---

type proposeQueueTool struct {
	resolver *proposal.Resolver
}

func (t *proposeQueueTool) Name() string { return "propose_queue" }
func (t *proposeQueueTool) Description() string {
	return "Propose replacing the play queue with a set of tracks. Requires user approval."
}
func (t *proposeQueueTool) RequiresApproval() bool { return true }

func (t *proposeQueueTool) InputSchema() map[string]any {
	return listRefsSchema()
}

func (t *proposeQueueTool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	p := t.resolver.ResolveQueue(refsFromParams(params))
	return &tools.Result{
		Output:   marshalOutput(p),
		Success:  true,
		Proposal: p,
	}, nil
}

// --- propose_playlist ---

type proposePlaylistTool struct {
	resolver *proposal.Resolver
}

func (t *proposePlaylistTool) Name() string { return "propose_playlist" }
func (t *proposePlaylistTool) Description() string {
	return "Propose creating a playlist or adding tracks to one. Requires user approval."
}
func (t *proposePlaylistTool) RequiresApproval() bool { return true }

func (t *proposePlaylistTool) InputSchema() map[string]any {
	schema := listRefsSchema()
	props := schema["properties"].(map[string]any)
	props["action"] = map[string]any{
		"type": "string",
		"enum": []any{"create", "add-tracks"},
	}
	props["name"] = map[string]any{
		"type":        "string",
		"description": "Playlist name",
	}
	schema["required"] = []any{"action", "name"}
	return schema
}

func (t *proposePlaylistTool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	action := proposal.PlaylistAction(stringParam(params, "action"))
	switch action {
	case proposal.PlaylistCreate, proposal.PlaylistAddTracks:
	default:
		return nil, fmt.Errorf("unknown playlist action %q", action)
	}
	name := stringParam(params, "name")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	p := t.resolver.ResolvePlaylist(action, name, refsFromParams(params))
	return &tools.Result{
		Output:   marshalOutput(p),
		Success:  true,
		Proposal: p,
	}, nil
}

// --- propose_surface ---

type proposeSurfaceTool struct {
	resolver *proposal.Resolver
}

func (t *proposeSurfaceTool) Name() string { return "propose_surface" }
func (t *proposeSurfaceTool) Description() string {
	return "Propose a UI change such as opening a tab or showing the player. Requires user approval."
}
func (t *proposeSurfaceTool) RequiresApproval() bool { return true }

func (t *proposeSurfaceTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []any{"open-tab", "show-player", "hide-player"},
			},
			"target_tab": map[string]any{
				"type":        "string",
				"description": "Tab to open when action is open-tab",
			},
		},
		"required": []any{"action"},
	}
}

func (t *proposeSurfaceTool) Execute(_ context.Context, params map[string]any) (*tools.Result, error) {
	action := proposal.SurfaceAction(stringParam(params, "action"))
	switch action {
	case proposal.SurfaceOpenTab, proposal.SurfaceShowPlayer, proposal.SurfaceHidePlayer:
	default:
		return nil, fmt.Errorf("unknown surface action %q", action)
	}

	p := t.resolver.Surface(action, stringParam(params, "target_tab"))
	return &tools.Result{
		Output:   marshalOutput(p),
		Success:  true,
		Proposal: p,
	}, nil
}

func listRefsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"track_ids": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"track_titles": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"collection": map[string]any{
				"type":        "string",
				"description": "Collection title to pull tracks from",
			},
		},
	}
}
