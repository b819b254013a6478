// Package proposal defines the inert action descriptions the assistant emits
// instead of mutating playback, queue, playlist, or UI state directly. A
// proposal is data: creating one never changes anything. The UI renders it as
// an approval card; the decision and the actual mutation happen outside this
// core, which never tracks them.
package proposal

// Kind tags the proposal variant.
type Kind string

const (
	KindPlayback Kind = "playback"
	KindQueueSet Kind = "queue-set"
	KindPlaylist Kind = "playlist"
	KindSurface  Kind = "ui"
)

// MaxTracks caps how many tracks a single queue or playlist proposal may
// reference. Inputs beyond the cap are dropped during resolution.
const MaxTracks = 50

// PlaybackAction enumerates what a playback proposal asks for.
type PlaybackAction string

const (
	PlaybackPlay   PlaybackAction = "play"
	PlaybackPause  PlaybackAction = "pause"
	PlaybackResume PlaybackAction = "resume"
)

// PlaylistAction enumerates what a playlist proposal asks for.
type PlaylistAction string

const (
	PlaylistCreate    PlaylistAction = "create"
	PlaylistAddTracks PlaylistAction = "add-tracks"
)

// SurfaceAction enumerates UI-level requests.
type SurfaceAction string

const (
	SurfaceOpenTab    SurfaceAction = "open-tab"
	SurfaceShowPlayer SurfaceAction = "show-player"
	SurfaceHidePlayer SurfaceAction = "hide-player"
)

// Playback proposes starting, pausing, or resuming playback of one track.
// When resolution failed, TrackID is empty, TrackTitle carries the literal
// query text, and Context explains that the track could not be found.
type Playback struct {
	Type             Kind           `json:"type"`
	ApprovalRequired bool           `json:"approvalRequired"`
	Action           PlaybackAction `json:"action"`
	TrackID          string         `json:"trackId,omitempty"`
	TrackTitle       string         `json:"trackTitle,omitempty"`
	Artist           string         `json:"artist,omitempty"`
	Context          string         `json:"context,omitempty"`
}

// QueueSet proposes replacing the play queue with an ordered track list.
type QueueSet struct {
	Type             Kind     `json:"type"`
	ApprovalRequired bool     `json:"approvalRequired"`
	Action           string   `json:"action"` // always "set-queue"
	TrackIDs         []string `json:"trackIds"`
	TrackTitles      []string `json:"trackTitles,omitempty"`
	Context          string   `json:"context,omitempty"`
}

// Playlist proposes creating a playlist or adding tracks to one.
type Playlist struct {
	Type             Kind           `json:"type"`
	ApprovalRequired bool           `json:"approvalRequired"`
	Action           PlaylistAction `json:"action"`
	Name             string         `json:"name"`
	TrackIDs         []string       `json:"trackIds"`
	TrackTitles      []string       `json:"trackTitles,omitempty"`
	Context          string         `json:"context,omitempty"`
}

// Surface proposes a UI change. No catalog resolution is involved.
type Surface struct {
	Type             Kind          `json:"type"`
	ApprovalRequired bool          `json:"approvalRequired"`
	Action           SurfaceAction `json:"action"`
	TargetTab        string        `json:"targetTab,omitempty"`
	Context          string        `json:"context,omitempty"`
}

// Proposal is the closed set of variants. Every variant this layer produces
// carries ApprovalRequired == true; nothing here ever flips it off.
type Proposal interface {
	Kind() Kind
	RequiresApproval() bool
}

func (p Playback) Kind() Kind { return KindPlayback }
func (p QueueSet) Kind() Kind { return KindQueueSet }
func (p Playlist) Kind() Kind { return KindPlaylist }
func (p Surface) Kind() Kind  { return KindSurface }

func (p Playback) RequiresApproval() bool { return p.ApprovalRequired }
func (p QueueSet) RequiresApproval() bool { return p.ApprovalRequired }
func (p Playlist) RequiresApproval() bool { return p.ApprovalRequired }
func (p Surface) RequiresApproval() bool  { return p.ApprovalRequired }
