package proposal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ariahq/aria/internal/catalog"
)

// Resolver turns loosely-specified tool inputs (queries, titles, collection
// names) into concrete proposals against the catalog. Resolution never
// errors: an unresolvable input yields a proposal with an explanatory
// Context string so the user sees what could not be found.
type Resolver struct {
	catalog catalog.Catalog
	logger  *slog.Logger
}

// NewResolver creates a resolver over the given catalog.
func NewResolver(cat catalog.Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{catalog: cat, logger: logger}
}

// ResolvePlayback resolves a search query to a single best track. Exact
// title matches win over substring matches; failing both, the first track of
// a matching collection is used; failing that, the proposal carries the
// literal query and a "couldn't find" context instead of defaulting to
// resume.
func (r *Resolver) ResolvePlayback(action PlaybackAction, searchQuery string) Playback {
	p := Playback{
		Type:             KindPlayback,
		ApprovalRequired: true,
		Action:           action,
	}

	// Pause and resume reference no track.
	if action != PlaybackPlay || strings.TrimSpace(searchQuery) == "" {
		return p
	}

	if tracks := r.catalog.TracksByTitle(searchQuery); len(tracks) > 0 {
		p.TrackID = tracks[0].ID
		p.TrackTitle = tracks[0].Title
		p.Artist = tracks[0].Artist
		return p
	}

	if col := r.catalog.CollectionByTitle(searchQuery); col != nil && len(col.TrackIDs) > 0 {
		if t := r.catalog.TrackByID(col.TrackIDs[0]); t != nil {
			p.TrackID = t.ID
			p.TrackTitle = t.Title
			p.Artist = t.Artist
			p.Context = fmt.Sprintf("Starting %q from the collection %q.", t.Title, col.Title)
			return p
		}
	}

	r.logger.Debug("playback resolution failed", slog.String("query", searchQuery))
	p.TrackTitle = searchQuery
	p.Context = fmt.Sprintf("I couldn't find %q in the catalog.", searchQuery)
	return p
}

// TrackRefs is the loose input for list-shaped proposals: any combination of
// explicit ids, explicit titles, and a named collection.
type TrackRefs struct {
	IDs        []string
	Titles     []string
	Collection string
}

// ResolveQueue resolves refs into a set-queue proposal. Unresolved inputs
// are silently dropped; a zero-result resolution produces an explanatory
// context string rather than an error.
func (r *Resolver) ResolveQueue(refs TrackRefs) QueueSet {
	ids, titles, dropped := r.resolveList(refs)
	q := QueueSet{
		Type:             KindQueueSet,
		ApprovalRequired: true,
		Action:           "set-queue",
		TrackIDs:         ids,
		TrackTitles:      titles,
	}
	q.Context = listContext(len(ids), dropped, refs)
	return q
}

// ResolvePlaylist resolves refs into a playlist proposal.
func (r *Resolver) ResolvePlaylist(action PlaylistAction, name string, refs TrackRefs) Playlist {
	ids, titles, dropped := r.resolveList(refs)
	p := Playlist{
		Type:             KindPlaylist,
		ApprovalRequired: true,
		Action:           action,
		Name:             name,
		TrackIDs:         ids,
		TrackTitles:      titles,
	}
	p.Context = listContext(len(ids), dropped, refs)
	return p
}

// Surface builds a UI proposal. Nothing to resolve.
func (r *Resolver) Surface(action SurfaceAction, targetTab string) Surface {
	return Surface{
		Type:             KindSurface,
		ApprovalRequired: true,
		Action:           action,
		TargetTab:        targetTab,
	}
}

// resolveList resolves ids, then titles, then the named collection, in that
// order, de-duplicated and capped at MaxTracks. Returns resolved ids,
// matching titles, and how many inputs were dropped as unresolvable.
func (r *Resolver) resolveList(refs TrackRefs) (ids, titles []string, dropped int) {
	seen := make(map[string]bool)

	add := func(t *catalog.Track) {
		if t == nil {
			dropped++
			return
		}
		if seen[t.ID] || len(ids) >= MaxTracks {
			return
		}
		seen[t.ID] = true
		ids = append(ids, t.ID)
		titles = append(titles, t.Title)
	}

	for _, id := range refs.IDs {
		add(r.catalog.TrackByID(id))
	}
	for _, title := range refs.Titles {
		if tracks := r.catalog.TracksByTitle(title); len(tracks) > 0 {
			add(&tracks[0])
		} else {
			dropped++
		}
	}
	if refs.Collection != "" {
		if col := r.catalog.CollectionByTitle(refs.Collection); col != nil {
			for _, id := range col.TrackIDs {
				add(r.catalog.TrackByID(id))
			}
		} else {
			dropped++
		}
	}
	return ids, titles, dropped
}

func listContext(resolved, dropped int, refs TrackRefs) string {
	if resolved == 0 {
		var what string
		switch {
		case refs.Collection != "":
			what = fmt.Sprintf("the collection %q", refs.Collection)
		case len(refs.Titles) > 0:
			what = fmt.Sprintf("%q", strings.Join(refs.Titles, ", "))
		default:
			what = "the requested tracks"
		}
		return fmt.Sprintf("I couldn't find %s in the catalog.", what)
	}
	if dropped > 0 {
		return fmt.Sprintf("Resolved %d tracks; %d could not be found and were skipped.", resolved, dropped)
	}
	return ""
}
