package session

import (
	"sync"
	"time"

	"beatsync.fm/model"
	"github.com/labstack/gommon/log"
)

// repeatingTask is a cancellable fixed-interval background task.
// Stopping is deterministic and idempotent: after stop returns, the
// task function will not run again.
type repeatingTask struct {
	done chan struct{}
	once sync.Once
}

func startRepeating(interval time.Duration, fn func()) *repeatingTask {
	t := &repeatingTask{done: make(chan struct{})}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				select {
				case <-t.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

func (t *repeatingTask) stop() {
	t.once.Do(func() { close(t.done) })
}

// publishTick is the host heartbeat: sample the live player and persist
// its transport state even absent an explicit command, so listeners stay
// informed during unattended playback and organic drift gets corrected.
func (s *Session) publishTick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == nil || !IsHost(s.room, s.identity) || s.pl == nil {
		return
	}
	src := s.pl.Source()
	if src.IsZero() {
		return
	}
	s.publishLocked(model.TransportState{
		Source:   src,
		Position: s.pl.CurrentTime(),
		Playing:  s.pl.Playing(),
	})
}

// publishLocked writes the authoritative transport state. A failed write
// is surfaced as a notice and not retried; the optimistic local update
// stays applied.
func (s *Session) publishLocked(st model.TransportState) {
	if s.room == nil || !IsHost(s.room, s.identity) {
		return
	}
	if err := s.store.UpdateRoomState(s.room.Code, st, s.identity.ID); err != nil {
		log.Warnf("room %s state publish failed: %v", s.room.Code, err)
		s.notify("Could not update the room, listeners may be out of sync.")
		return
	}
	s.room.Source = st.Source
	s.room.PlaybackTime = st.Position
	s.room.IsPlaying = st.Playing
}
