package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"beatsync.fm/model"
	"beatsync.fm/pkg/changefeed"
	"beatsync.fm/pkg/utils"
	"github.com/go-redis/redis/v7"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrTrackNotFound = errors.New("track not found")
)

const (
	roomCodeLength = 6

	// RoomChannelPrefix scopes change-feed channels per room.
	RoomChannelPrefix = "room_updates:"
)

// RoomChannel is the change-feed channel carrying a room's updates.
func RoomChannel(code string) string {
	return RoomChannelPrefix + code
}

// RoomEvent is the change record published on every authoritative room
// write. OriginID identifies the writer so subscribers can suppress
// their own echoes.
type RoomEvent struct {
	RoomCode string               `json:"room_code"`
	OriginID string               `json:"origin_id"`
	State    model.TransportState `json:"state"`
}

type Storage interface {
	RoomExist(code string) bool
	CreateRoom(hostID string) (*model.Room, error)
	GetRoom(code string) (*model.Room, error)
	// UpdateRoomState persists the authoritative transport state and
	// publishes the change event. Callers gate this on isHost.
	UpdateRoomState(code string, state model.TransportState, originID string) error
	DeleteRoom(code string) error

	AddUserTrack(t *model.Track) error
	RemoveUserTrack(ownerID, trackID string) error
	ListUserTracks(ownerID string) ([]model.Track, error)

	AddRoomTrack(code string, t *model.Track) error
	ListRoomTracks(code string) ([]model.Track, error)

	AddMember(m *model.Member) error
	TouchMember(code, userID string, at time.Time) error
	RemoveMember(code, userID string) error
	ListMembers(code string) ([]model.Member, error)

	IncrVisits() (int64, error)
}

type storage struct {
	rdb  *redis.Client
	feed changefeed.Broker
}

func New(rdb *redis.Client, feed changefeed.Broker) Storage {
	return &storage{rdb: rdb, feed: feed}
}

func (s *storage) RoomExist(code string) bool {
	return s.rdb.Exists("room:"+code).Val() == 1
}

func (s *storage) CreateRoom(hostID string) (*model.Room, error) {
	var code string
	for i := 0; i < 10; i++ {
		candidate := utils.RandRoomCode(roomCodeLength)
		if !s.RoomExist(candidate) {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, errors.New("unable to generate a unique room code")
	}

	room := &model.Room{
		Code:      code,
		HostID:    hostID,
		CreatedAt: time.Now().UTC(),
	}

	data := map[string]interface{}{
		"host_id":       room.HostID,
		"track_ref":     "",
		"playback_time": "0",
		"is_playing":    "false",
		"created_at":    room.CreatedAt.Format(time.RFC3339Nano),
	}
	if err := s.rdb.HSet("room:"+code, data).Err(); err != nil {
		return nil, err
	}
	return room, nil
}

func (s *storage) GetRoom(code string) (*model.Room, error) {
	data := s.rdb.HGetAll("room:" + code).Val()
	if len(data) == 0 {
		return nil, ErrRoomNotFound
	}

	src, err := model.ParseRef(data["track_ref"])
	if err != nil {
		return nil, err
	}
	position, _ := strconv.ParseFloat(data["playback_time"], 64)
	playing, _ := strconv.ParseBool(data["is_playing"])
	createdAt, _ := time.Parse(time.RFC3339Nano, data["created_at"])

	return &model.Room{
		Code:         code,
		HostID:       data["host_id"],
		Source:       src,
		PlaybackTime: position,
		IsPlaying:    playing,
		CreatedAt:    createdAt,
	}, nil
}

func (s *storage) UpdateRoomState(code string, state model.TransportState, originID string) error {
	if !s.RoomExist(code) {
		return ErrRoomNotFound
	}

	data := map[string]interface{}{
		"track_ref":     state.Source.Ref(),
		"playback_time": strconv.FormatFloat(state.Position, 'f', -1, 64),
		"is_playing":    strconv.FormatBool(state.Playing),
	}
	if err := s.rdb.HSet("room:"+code, data).Err(); err != nil {
		return err
	}

	ev := RoomEvent{RoomCode: code, OriginID: originID, State: state}
	payload, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	return s.feed.Publish(payload, RoomChannel(code))
}

func (s *storage) DeleteRoom(code string) error {
	if !s.RoomExist(code) {
		return ErrRoomNotFound
	}
	return s.rdb.Del("room:"+code, "room_tracks:"+code, "room_members:"+code).Err()
}

func (s *storage) AddUserTrack(t *model.Track) error {
	return s.pushTrack("user_tracks:"+t.OwnerID, t)
}

func (s *storage) RemoveUserTrack(ownerID, trackID string) error {
	key := "user_tracks:" + ownerID
	tracks, err := s.listTracks(key)
	if err != nil {
		return err
	}

	found := false
	kept := make([]interface{}, 0, len(tracks))
	for i := range tracks {
		if tracks[i].ID == trackID {
			found = true
			continue
		}
		b, err := json.Marshal(&tracks[i])
		if err != nil {
			return err
		}
		kept = append(kept, string(b))
	}
	if !found {
		return ErrTrackNotFound
	}

	if err := s.rdb.Del(key).Err(); err != nil {
		return err
	}
	if len(kept) == 0 {
		return nil
	}
	return s.rdb.RPush(key, kept...).Err()
}

func (s *storage) ListUserTracks(ownerID string) ([]model.Track, error) {
	return s.listTracks("user_tracks:" + ownerID)
}

func (s *storage) AddRoomTrack(code string, t *model.Track) error {
	if !s.RoomExist(code) {
		return ErrRoomNotFound
	}
	return s.pushTrack("room_tracks:"+code, t)
}

func (s *storage) ListRoomTracks(code string) ([]model.Track, error) {
	if !s.RoomExist(code) {
		return nil, ErrRoomNotFound
	}
	return s.listTracks("room_tracks:" + code)
}

func (s *storage) pushTrack(key string, t *model.Track) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.rdb.RPush(key, string(b)).Err()
}

func (s *storage) listTracks(key string) ([]model.Track, error) {
	raw := s.rdb.LRange(key, 0, -1).Val()
	tracks := make([]model.Track, 0, len(raw))
	for _, item := range raw {
		var t model.Track
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("corrupt track record in %s: %w", key, err)
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (s *storage) AddMember(m *model.Member) error {
	if !s.RoomExist(m.RoomCode) {
		return ErrRoomNotFound
	}
	key := "room_members:" + m.RoomCode
	// A rejoin keeps the original join time so member ordering is stable.
	if raw, err := s.rdb.HGet(key, m.UserID).Result(); err == nil {
		var prev model.Member
		if json.Unmarshal([]byte(raw), &prev) == nil && !prev.JoinedAt.IsZero() {
			m.JoinedAt = prev.JoinedAt
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.rdb.HSet(key, m.UserID, string(b)).Err()
}

func (s *storage) TouchMember(code, userID string, at time.Time) error {
	key := "room_members:" + code
	raw, err := s.rdb.HGet(key, userID).Result()
	if err != nil {
		return err
	}
	var m model.Member
	if err = json.Unmarshal([]byte(raw), &m); err != nil {
		return err
	}
	m.LastSeen = at
	b, err := json.Marshal(&m)
	if err != nil {
		return err
	}
	return s.rdb.HSet(key, userID, string(b)).Err()
}

func (s *storage) RemoveMember(code, userID string) error {
	return s.rdb.HDel("room_members:"+code, userID).Err()
}

func (s *storage) ListMembers(code string) ([]model.Member, error) {
	if !s.RoomExist(code) {
		return nil, ErrRoomNotFound
	}
	data := s.rdb.HGetAll("room_members:" + code).Val()
	members := make([]model.Member, 0, len(data))
	for _, raw := range data {
		var m model.Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("corrupt member record in room %s: %w", code, err)
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (s *storage) IncrVisits() (int64, error) {
	return s.rdb.Incr("visits:" + time.Now().Format("02.01.06")).Result()
}
