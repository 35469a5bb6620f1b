package player

import (
	"errors"

	"beatsync.fm/model"
)

// ErrAutoplayBlocked is returned by Player.Play when the runtime's media
// policy rejects a programmatic start. It is not a sync failure: one user
// gesture resolves it and later play attempts retry transparently.
var ErrAutoplayBlocked = errors.New("playback start blocked, user gesture required")

// Player is the media transport primitive the sync engine drives. Both
// the direct-audio element and the embedded-video player satisfy it.
type Player interface {
	// Load switches the playback source. Position resets to 0.
	Load(src model.TrackSource)
	// Play starts playback, returning ErrAutoplayBlocked when the
	// platform refuses an unsolicited start.
	Play() error
	Pause()
	// Seek moves the playhead to the given elapsed seconds.
	Seek(seconds float64)
	CurrentTime() float64
	Duration() float64
	Volume() float64
	SetVolume(v float64)
	Playing() bool
	// Source reports the currently loaded source, zero if none.
	Source() model.TrackSource
	// OnEnded registers the track-end callback. A single callback is
	// supported; registering replaces the previous one.
	OnEnded(fn func())
}

type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// Cycle advances off -> all -> one -> off.
func (r RepeatMode) Cycle() RepeatMode {
	switch r {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// State is the local player state value object. It is derived, never
// authoritative for a room: a listener's State is entirely driven by
// reconciliation against the room record. One State instance is shared
// by reference between the components that read or request changes to
// it, there are no duplicate copies.
type State struct {
	IsPlaying   bool       `json:"is_playing"`
	CurrentTime float64    `json:"current_time"`
	Duration    float64    `json:"duration"`
	Volume      float64    `json:"volume"`
	Shuffle     bool       `json:"shuffle"`
	Repeat      RepeatMode `json:"repeat"`
}

func NewState() *State {
	return &State{Volume: 1, Repeat: RepeatOff}
}
