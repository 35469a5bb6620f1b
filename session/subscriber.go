package session

import (
	"encoding/json"
	"time"

	"beatsync.fm/model"
	"beatsync.fm/pkg/changefeed"
	"beatsync.fm/player"
	"beatsync.fm/storage"
	"github.com/labstack/gommon/log"
)

// handleEvent is the change-feed entry point. Delivery is at-least-once
// and in commit order per room; applying is idempotent so duplicates are
// harmless.
func (s *Session) handleEvent(ev *changefeed.Event) {
	var re storage.RoomEvent
	if err := json.Unmarshal(ev.Payload, &re); err != nil {
		log.Warnf("malformed room event on %s: %v", ev.Channel, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop events for a room we already left; nothing may mutate state
	// on behalf of a stale subscription.
	if s.room == nil || s.room.Code != re.RoomCode {
		return
	}
	// The publisher's own writes echo back on the same feed.
	if re.OriginID == s.identity.ID {
		return
	}

	s.room.Source = re.State.Source
	s.room.PlaybackTime = re.State.Position
	s.room.IsPlaying = re.State.Playing

	if IsHost(s.room, s.identity) {
		return
	}
	// Every fresh authoritative event gets its own retry window.
	s.applyRetries = 0
	s.applyLocked(re.State)
}

// applyLocked reconciles the local player against an authoritative
// transport state.
func (s *Session) applyLocked(st model.TransportState) {
	if s.pl == nil {
		// The media transport may not be mounted yet (join races the
		// player mount). Hold the update and retry shortly instead of
		// dropping it. The window is bounded: a held update older than
		// the retry budget is stale anyway, the next feed event
		// supersedes it.
		if s.applyRetries >= maxApplyRetries {
			log.Warnf("no player mounted, dropping held room update (ref %s)", st.Source.Ref())
			s.pending = nil
			return
		}
		s.applyRetries++
		held := st
		s.pending = &held
		if s.retryTimer != nil {
			s.retryTimer.Stop()
		}
		s.retryTimer = time.AfterFunc(s.retryAfter, s.retryPending)
		return
	}
	s.applyRetries = 0

	if st.Source.IsZero() {
		// Host has not selected a track yet.
		if s.pl.Playing() {
			s.pl.Pause()
		}
		s.state.IsPlaying = false
		return
	}

	q := s.selection.Active()
	idx, found := q.FindBySource(st.Source)
	if !found {
		// Stale reference: our copy of the room playlist hasn't caught
		// up. Leave local playback untouched until it does.
		return
	}
	q.SetIndex(idx)
	if s.pl.Source() != st.Source {
		s.pl.Load(st.Source)
	}

	local := s.pl.CurrentTime()
	threshold := player.DriftThreshold(st.Source.Kind)
	if pos, corrected := player.Reconcile(local, st.Position, threshold); corrected {
		s.pl.Seek(pos)
		s.state.CurrentTime = pos
	}

	if st.Playing {
		if !s.pl.Playing() {
			s.startPlaybackLocked()
		}
	} else if s.pl.Playing() {
		s.pl.Pause()
	}
	s.state.IsPlaying = s.pl.Playing()
}

func (s *Session) retryPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.room == nil {
		return
	}
	st := *s.pending
	s.pending = nil
	s.applyLocked(st)
}
