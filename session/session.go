package session

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"beatsync.fm/model"
	"beatsync.fm/pkg/changefeed"
	"beatsync.fm/player"
	"beatsync.fm/storage"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
)

var (
	// ErrNotHost is returned when a listener attempts a transport
	// mutation while a room is active.
	ErrNotHost = errors.New("only the room host may control playback")
	// ErrNoRoom is returned by room-scoped operations outside a room.
	ErrNoRoom = errors.New("no active room")
)

const (
	publishInterval   = 2 * time.Second
	heartbeatInterval = 10 * time.Second
	applyRetryDelay   = 250 * time.Millisecond

	// maxApplyRetries bounds how long a held update waits for a player
	// mount before being dropped as stale.
	maxApplyRetries = 8
)

// Notifier receives user-facing, dismissible notices. Nothing routed
// here is fatal.
type Notifier func(text string)

// IsHost reports whether the identity is the room's single authorized
// transport writer.
func IsHost(room *model.Room, identity model.Identity) bool {
	return room != nil && room.HostID == identity.ID
}

// Session owns one participant's room context: it arbitrates host vs
// listener roles, runs the publish or subscribe side of the sync
// protocol accordingly, and mediates every local player mutation.
type Session struct {
	mu sync.Mutex

	identity  model.Identity
	store     storage.Storage
	feed      changefeed.Broker
	notify    Notifier
	state     *player.State
	selection *player.Selection

	pl   player.Player
	room *model.Room

	publisher *repeatingTask
	heartbeat *repeatingTask

	// pending holds an authoritative update that arrived before the
	// player was mounted, waiting for the deferred retry.
	pending      *model.TransportState
	retryTimer   *time.Timer
	applyRetries int

	autoplayNoticed bool

	// overridable in tests
	publishEvery   time.Duration
	heartbeatEvery time.Duration
	retryAfter     time.Duration
}

func New(identity model.Identity, store storage.Storage, feed changefeed.Broker, notify Notifier) *Session {
	if notify == nil {
		notify = func(string) {}
	}
	return &Session{
		identity:       identity,
		store:          store,
		feed:           feed,
		notify:         notify,
		state:          player.NewState(),
		selection:      player.NewSelection(rand.New(rand.NewSource(time.Now().UnixNano()))),
		publishEvery:   publishInterval,
		heartbeatEvery: heartbeatInterval,
		retryAfter:     applyRetryDelay,
	}
}

// AttachPlayer mounts the media transport. It may happen after a room
// join; any authoritative update received in between is applied now.
func (s *Session) AttachPlayer(p player.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pl = p
	p.OnEnded(s.onTrackEnd)
	if s.pending != nil {
		st := *s.pending
		s.pending = nil
		s.applyLocked(st)
	}
}

// State exposes the shared local player state value object.
func (s *Session) State() *player.State {
	return s.state
}

// Selection exposes the active playlist model.
func (s *Session) Selection() *player.Selection {
	return s.selection
}

func (s *Session) Room() *model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// IsHost reports whether the local identity owns the active room.
func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return IsHost(s.room, s.identity)
}

// CreateRoom persists a fresh room with this identity as host and
// enters it. The new room starts stopped at position 0 with no track.
func (s *Session) CreateRoom() (*model.Room, error) {
	room, err := s.store.CreateRoom(s.identity.ID)
	if err != nil {
		return nil, err
	}
	if err = s.enterRoom(room); err != nil {
		return nil, err
	}
	return room, nil
}

// JoinRoom looks up a room by its case-normalized code and enters it.
func (s *Session) JoinRoom(code string) (*model.Room, error) {
	room, err := s.store.GetRoom(model.NormalizeRoomCode(code))
	if err != nil {
		return nil, err
	}
	if err = s.enterRoom(room); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Session) enterRoom(room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != nil {
		s.leaveLocked()
	}

	tracks, err := s.store.ListRoomTracks(room.Code)
	if err != nil {
		return err
	}

	err = s.feed.Subscribe(storage.RoomChannel(room.Code), s.handleEvent)
	if err != nil {
		return err
	}

	s.room = room
	s.selection.Room().SetTracks(tracks)
	s.selection.SetRoomActive(true)

	now := time.Now().UTC()
	err = s.store.AddMember(&model.Member{
		ID:       uuid.NewString(),
		UserID:   s.identity.ID,
		Email:    s.identity.Email,
		RoomCode: room.Code,
		JoinedAt: now,
		LastSeen: now,
	})
	if err != nil {
		// Presence is best-effort; the sync protocol works without it.
		log.Warnf("member registration failed for room %s: %v", room.Code, err)
	}
	s.heartbeat = startRepeating(s.heartbeatEvery, s.touchMember)

	if IsHost(room, s.identity) {
		s.publisher = startRepeating(s.publishEvery, s.publishTick)
	} else {
		// Capture state the host set before we connected.
		s.applyLocked(model.TransportState{
			Source:   room.Source,
			Position: room.PlaybackTime,
			Playing:  room.IsPlaying,
		})
	}
	return nil
}

// LeaveRoom clears the local room context and synchronously stops every
// periodic task and subscription scoped to it. The persisted room record
// is untouched; the room continues to exist for other members.
func (s *Session) LeaveRoom() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked()
}

func (s *Session) leaveLocked() {
	if s.room == nil {
		return
	}
	code := s.room.Code

	if s.publisher != nil {
		s.publisher.stop()
		s.publisher = nil
	}
	if s.heartbeat != nil {
		s.heartbeat.stop()
		s.heartbeat = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.pending = nil
	s.applyRetries = 0

	if err := s.feed.Unsubscribe(storage.RoomChannel(code)); err != nil {
		log.Warnf("unsubscribe from room %s failed: %v", code, err)
	}

	s.room = nil
	s.selection.SetRoomActive(false)
	s.autoplayNoticed = false
}

func (s *Session) touchMember() {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == nil {
		return
	}
	if err := s.store.TouchMember(room.Code, s.identity.ID, time.Now().UTC()); err != nil {
		log.Warnf("presence heartbeat failed for room %s: %v", room.Code, err)
	}
}
