package model

import (
	"fmt"
	"net"
	"strings"
	"time"

	"beatsync.fm/pkg/utils"
)

// SourceKind discriminates the two track-source variants. Exactly one
// variant is active per track: a directly fetchable media URL or an
// external video id played through an embedded player.
type SourceKind string

const (
	SourceMedia SourceKind = "media"
	SourceVideo SourceKind = "video"
)

type (
	// TrackSource is a tagged reference to playable content.
	TrackSource struct {
		Kind  SourceKind `json:"kind"`
		Value string     `json:"value"`
	}

	Track struct {
		ID        string      `json:"id"`
		Name      string      `json:"name"`
		Source    TrackSource `json:"source"`
		OwnerID   string      `json:"owner_id"`
		CreatedAt time.Time   `json:"created_at"`
	}

	// Room is the single shared mutable record of a listening session.
	// Only the host writes Source, PlaybackTime and IsPlaying.
	Room struct {
		Code         string      `json:"room_code"`
		HostID       string      `json:"host_id"`
		Source       TrackSource `json:"current_track_ref"`
		PlaybackTime float64     `json:"playback_time"`
		IsPlaying    bool        `json:"is_playing"`
		CreatedAt    time.Time   `json:"created_at"`
	}

	// TransportState is the canonical "what is playing, where, and
	// whether it is running" triple, for either source variant.
	TransportState struct {
		Source   TrackSource `json:"source"`
		Position float64     `json:"position"`
		Playing  bool        `json:"playing"`
	}

	// Identity is what the external session provider hands us. The core
	// only ever compares ID; Email is display-only.
	Identity struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	Member struct {
		ID       string    `json:"id"`
		UserID   string    `json:"user_id"`
		Email    string    `json:"email"`
		RoomCode string    `json:"room_code"`
		JoinedAt time.Time `json:"joined_at"`
		LastSeen time.Time `json:"last_seen"`
		Conn     net.Conn  `json:"-"`
	}
)

func MediaSource(url string) TrackSource {
	return TrackSource{Kind: SourceMedia, Value: url}
}

func VideoSource(id string) TrackSource {
	return TrackSource{Kind: SourceVideo, Value: id}
}

// Ref encodes the source as the opaque current_track_ref persisted on a
// room, e.g. "media:https://..." or "video:dQw4w9WgXcQ".
func (ts TrackSource) Ref() string {
	if ts.IsZero() {
		return ""
	}
	return string(ts.Kind) + ":" + ts.Value
}

func (ts TrackSource) IsZero() bool {
	return ts.Value == ""
}

// ParseRef is the inverse of Ref. An empty ref decodes to the zero source
// (no track selected yet).
func ParseRef(ref string) (TrackSource, error) {
	if ref == "" {
		return TrackSource{}, nil
	}
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return TrackSource{}, fmt.Errorf("malformed track ref: %q", ref)
	}
	switch SourceKind(parts[0]) {
	case SourceMedia, SourceVideo:
		return TrackSource{Kind: SourceKind(parts[0]), Value: parts[1]}, nil
	}
	return TrackSource{}, fmt.Errorf("unknown track source kind: %q", parts[0])
}

func (t *Track) Valid() bool {
	if !utils.IsLengthValid(t.Name, 1, 200) {
		return false
	}
	switch t.Source.Kind {
	case SourceMedia:
		return utils.IsUrlValid(t.Source.Value)
	case SourceVideo:
		return utils.IsVideoIDValid(t.Source.Value)
	}
	return false
}

// NormalizeRoomCode maps user input onto the canonical room-code form.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (m *Member) GetID() string {
	return m.UserID
}

func (m *Member) Write(p []byte) (int, error) {
	return m.Conn.Write(p)
}

// Online reports whether the member's presence heartbeat has been seen
// within the liveness window.
func (m *Member) Online(now time.Time, window time.Duration) bool {
	return now.Sub(m.LastSeen) < window
}
