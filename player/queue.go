package player

import (
	"math/rand"

	"beatsync.fm/model"
)

// EndAction is what the queue decides should happen when a track ends.
type EndAction int

const (
	// EndReplay restarts the current track from 0, index unchanged.
	EndReplay EndAction = iota
	// EndAdvance means the index moved to the next track.
	EndAdvance
	// EndStop means the list is exhausted and playback stops.
	EndStop
)

// Queue is one ordered track list plus the current index. Tracks are
// ordered by creation time by whoever loads them; the queue itself only
// guarantees the index invariant: always within [0, len) while the list
// is non-empty, reset to 0 whenever a shrink would strand it.
type Queue struct {
	tracks []model.Track
	index  int
	rnd    *rand.Rand
}

func NewQueue() *Queue {
	return &Queue{}
}

// NewQueueWithRand injects the random source used for shuffle picks.
func NewQueueWithRand(rnd *rand.Rand) *Queue {
	return &Queue{rnd: rnd}
}

// SetTracks replaces the list, re-clamping the index.
func (q *Queue) SetTracks(tracks []model.Track) {
	q.tracks = tracks
	if q.index >= len(tracks) {
		q.index = 0
	}
}

func (q *Queue) Tracks() []model.Track {
	return q.tracks
}

func (q *Queue) Len() int {
	return len(q.tracks)
}

func (q *Queue) Index() int {
	return q.index
}

// SetIndex moves the current index, rejecting out-of-range values.
func (q *Queue) SetIndex(i int) bool {
	if i < 0 || i >= len(q.tracks) {
		return false
	}
	q.index = i
	return true
}

func (q *Queue) Current() (model.Track, bool) {
	if len(q.tracks) == 0 {
		return model.Track{}, false
	}
	return q.tracks[q.index], true
}

// FindBySource resolves an authoritative track ref against the list.
func (q *Queue) FindBySource(src model.TrackSource) (int, bool) {
	for i, t := range q.tracks {
		if t.Source == src {
			return i, true
		}
	}
	return -1, false
}

// Next advances the index. Shuffle picks uniformly in [0, len), which may
// repeat the current index. Without shuffle the queue wraps circularly,
// except that with repeat off an exhausted list (current index is last)
// stops instead of wrapping: the index stays put and ok is false.
func (q *Queue) Next(shuffle bool, repeat RepeatMode) (index int, ok bool) {
	if len(q.tracks) == 0 {
		return q.index, false
	}
	if shuffle {
		q.index = q.randIndex()
		return q.index, true
	}
	if repeat == RepeatOff && q.index == len(q.tracks)-1 {
		return q.index, false
	}
	q.index = (q.index + 1) % len(q.tracks)
	return q.index, true
}

// Previous mirrors Next without the stop-at-start special case.
func (q *Queue) Previous(shuffle bool) (index int, ok bool) {
	if len(q.tracks) == 0 {
		return q.index, false
	}
	if shuffle {
		q.index = q.randIndex()
		return q.index, true
	}
	q.index = (q.index - 1 + len(q.tracks)) % len(q.tracks)
	return q.index, true
}

// OnTrackEnd decides the end-of-track transition. Repeat-one replays in
// place; everything else defers to Next.
func (q *Queue) OnTrackEnd(shuffle bool, repeat RepeatMode) EndAction {
	if repeat == RepeatOne {
		return EndReplay
	}
	if _, ok := q.Next(shuffle, repeat); !ok {
		return EndStop
	}
	return EndAdvance
}

func (q *Queue) randIndex() int {
	if q.rnd != nil {
		return q.rnd.Intn(len(q.tracks))
	}
	return rand.Intn(len(q.tracks))
}

// Selection presents one active queue regardless of whether the user is
// solo or in a room. The personal queue keeps its position while a room
// queue is active.
type Selection struct {
	personal *Queue
	room     *Queue
	inRoom   bool
}

func NewSelection(rnd *rand.Rand) *Selection {
	return &Selection{
		personal: NewQueueWithRand(rnd),
		room:     NewQueueWithRand(rnd),
	}
}

// Active returns the queue playback currently runs against.
func (s *Selection) Active() *Queue {
	if s.inRoom {
		return s.room
	}
	return s.personal
}

func (s *Selection) Personal() *Queue {
	return s.personal
}

func (s *Selection) Room() *Queue {
	return s.room
}

// SetRoomActive switches between the personal and room-shared queue.
func (s *Selection) SetRoomActive(active bool) {
	s.inRoom = active
}

func (s *Selection) RoomActive() bool {
	return s.inRoom
}
