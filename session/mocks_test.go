package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"beatsync.fm/model"
	"beatsync.fm/pkg/changefeed"
	"beatsync.fm/player"
	"beatsync.fm/storage"
)

// fakePlayer is an in-memory media transport recording every call.
type fakePlayer struct {
	mu        sync.Mutex
	src       model.TrackSource
	time      float64
	duration  float64
	volume    float64
	playing   bool
	blockPlay bool
	loads     int
	seeks     int
	plays     int
	ended     func()
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{duration: 300, volume: 1}
}

func (p *fakePlayer) Load(src model.TrackSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.src = src
	p.time = 0
	p.playing = false
	p.loads++
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blockPlay {
		return player.ErrAutoplayBlocked
	}
	p.playing = true
	p.plays++
	return nil
}

func (p *fakePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

func (p *fakePlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.time = seconds
	p.seeks++
}

func (p *fakePlayer) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

func (p *fakePlayer) Duration() float64 { return p.duration }

func (p *fakePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *fakePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *fakePlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Source() model.TrackSource {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src
}

func (p *fakePlayer) OnEnded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = fn
}

func (p *fakePlayer) fireEnded() {
	p.mu.Lock()
	fn := p.ended
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePlayer) snapshot() (src model.TrackSource, time float64, playing bool, loads, seeks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.src, p.time, p.playing, p.loads, p.seeks
}

// fakeStore is an in-memory storage.Storage that publishes change
// events to the injected feed exactly like the redis implementation.
type fakeStore struct {
	mu          sync.Mutex
	feed        changefeed.Broker
	rooms       map[string]*model.Room
	roomTracks  map[string][]model.Track
	userTracks  map[string][]model.Track
	members     map[string]map[string]model.Member
	nextCode    int
	updates     int
	failUpdates bool
}

func newFakeStore(feed changefeed.Broker) *fakeStore {
	return &fakeStore{
		feed:       feed,
		rooms:      make(map[string]*model.Room),
		roomTracks: make(map[string][]model.Track),
		userTracks: make(map[string][]model.Track),
		members:    make(map[string]map[string]model.Member),
	}
}

func (s *fakeStore) RoomExist(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[code]
	return ok
}

func (s *fakeStore) CreateRoom(hostID string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCode++
	code := fmt.Sprintf("ROOM%02d", s.nextCode)
	room := &model.Room{Code: code, HostID: hostID, CreatedAt: time.Now().UTC()}
	s.rooms[code] = room
	cp := *room
	return &cp, nil
}

func (s *fakeStore) GetRoom(code string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return nil, storage.ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *fakeStore) UpdateRoomState(code string, state model.TransportState, originID string) error {
	s.mu.Lock()
	if s.failUpdates {
		s.mu.Unlock()
		return errors.New("persistence rejected the write")
	}
	room, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return storage.ErrRoomNotFound
	}
	room.Source = state.Source
	room.PlaybackTime = state.Position
	room.IsPlaying = state.Playing
	s.updates++
	feed := s.feed
	s.mu.Unlock()

	payload, err := json.Marshal(&storage.RoomEvent{RoomCode: code, OriginID: originID, State: state})
	if err != nil {
		return err
	}
	return feed.Publish(payload, storage.RoomChannel(code))
}

func (s *fakeStore) DeleteRoom(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return storage.ErrRoomNotFound
	}
	delete(s.rooms, code)
	delete(s.roomTracks, code)
	delete(s.members, code)
	return nil
}

func (s *fakeStore) AddUserTrack(t *model.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userTracks[t.OwnerID] = append(s.userTracks[t.OwnerID], *t)
	return nil
}

func (s *fakeStore) RemoveUserTrack(ownerID, trackID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tracks := s.userTracks[ownerID]
	for i := range tracks {
		if tracks[i].ID == trackID {
			s.userTracks[ownerID] = append(tracks[:i:i], tracks[i+1:]...)
			return nil
		}
	}
	return storage.ErrTrackNotFound
}

func (s *fakeStore) ListUserTracks(ownerID string) ([]model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Track(nil), s.userTracks[ownerID]...), nil
}

func (s *fakeStore) AddRoomTrack(code string, t *model.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return storage.ErrRoomNotFound
	}
	s.roomTracks[code] = append(s.roomTracks[code], *t)
	return nil
}

func (s *fakeStore) ListRoomTracks(code string) ([]model.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return nil, storage.ErrRoomNotFound
	}
	return append([]model.Track(nil), s.roomTracks[code]...), nil
}

func (s *fakeStore) AddMember(m *model.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[m.RoomCode]; !ok {
		return storage.ErrRoomNotFound
	}
	if s.members[m.RoomCode] == nil {
		s.members[m.RoomCode] = make(map[string]model.Member)
	}
	s.members[m.RoomCode][m.UserID] = *m
	return nil
}

func (s *fakeStore) TouchMember(code, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[code][userID]
	if !ok {
		return errors.New("member not found")
	}
	m.LastSeen = at
	s.members[code][userID] = m
	return nil
}

func (s *fakeStore) RemoveMember(code, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[code], userID)
	return nil
}

func (s *fakeStore) ListMembers(code string) ([]model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return nil, storage.ErrRoomNotFound
	}
	out := make([]model.Member, 0, len(s.members[code]))
	for _, m := range s.members[code] {
		out = append(out, m)
	}
	return out, nil
}

func (s *fakeStore) IncrVisits() (int64, error) { return 0, nil }

func (s *fakeStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *fakeStore) setFailUpdates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = fail
}

func (s *fakeStore) setRoomState(code string, state model.TransportState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.rooms[code]
	room.Source = state.Source
	room.PlaybackTime = state.Position
	room.IsPlaying = state.Playing
}
