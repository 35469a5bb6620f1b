package session

import (
	"errors"

	"beatsync.fm/model"
	"beatsync.fm/player"
)

// ErrNoPlayer is returned by transport commands before a media transport
// has been attached.
var ErrNoPlayer = errors.New("no player attached")

// canControlLocked gates every transport mutation: inside a room only
// the host may issue them, listeners are read-only.
func (s *Session) canControlLocked() error {
	if s.room != nil && !IsHost(s.room, s.identity) {
		return ErrNotHost
	}
	if s.pl == nil {
		return ErrNoPlayer
	}
	return nil
}

// LoadPersonalTracks refreshes the personal queue from storage. The
// current index is re-clamped when the list shrank under it.
func (s *Session) LoadPersonalTracks() error {
	tracks, err := s.store.ListUserTracks(s.identity.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.selection.Personal().SetTracks(tracks)
	s.mu.Unlock()
	return nil
}

// RefreshRoomTracks refreshes the room-shared queue from storage.
func (s *Session) RefreshRoomTracks() error {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == nil {
		return ErrNoRoom
	}
	tracks, err := s.store.ListRoomTracks(room.Code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.selection.Room().SetTracks(tracks)
	s.mu.Unlock()
	return nil
}

// TogglePlay flips play/pause on the current track and, for a room host,
// eagerly publishes the resulting state.
func (s *Session) TogglePlay() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canControlLocked(); err != nil {
		return err
	}
	cur, ok := s.selection.Active().Current()
	if !ok {
		return nil
	}
	if s.pl.Source() != cur.Source {
		s.pl.Load(cur.Source)
	}

	if s.state.IsPlaying {
		s.pl.Pause()
		s.state.IsPlaying = false
	} else {
		s.startPlaybackLocked()
		// Optimistic: the local flag flips even if the platform held
		// the actual start back behind a user gesture.
		s.state.IsPlaying = true
	}

	s.publishLocked(model.TransportState{
		Source:   cur.Source,
		Position: s.pl.CurrentTime(),
		Playing:  s.state.IsPlaying,
	})
	return nil
}

// Seek moves the playhead and eagerly publishes the new position.
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canControlLocked(); err != nil {
		return err
	}
	cur, ok := s.selection.Active().Current()
	if !ok {
		return nil
	}
	s.pl.Seek(seconds)
	s.state.CurrentTime = seconds
	s.publishLocked(model.TransportState{
		Source:   cur.Source,
		Position: seconds,
		Playing:  s.state.IsPlaying,
	})
	return nil
}

// Next advances the queue. With repeat off, no shuffle and the last
// track current, playback stops in place instead of wrapping.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canControlLocked(); err != nil {
		return err
	}
	q := s.selection.Active()
	if _, ok := q.Next(s.state.Shuffle, s.state.Repeat); !ok {
		if q.Len() > 0 {
			s.stopPlaybackLocked()
		}
		return nil
	}
	s.startCurrentLocked()
	return nil
}

// Previous steps back through the queue, circular, no stop-at-start.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canControlLocked(); err != nil {
		return err
	}
	if _, ok := s.selection.Active().Previous(s.state.Shuffle); !ok {
		return nil
	}
	s.startCurrentLocked()
	return nil
}

// SelectTrack jumps to an explicit queue index.
func (s *Session) SelectTrack(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canControlLocked(); err != nil {
		return err
	}
	if !s.selection.Active().SetIndex(index) {
		return errors.New("track index out of range")
	}
	s.startCurrentLocked()
	return nil
}

// startCurrentLocked loads the queue's current track from position 0,
// starts it, and publishes the transition.
func (s *Session) startCurrentLocked() {
	cur, ok := s.selection.Active().Current()
	if !ok {
		return
	}
	s.pl.Load(cur.Source)
	s.startPlaybackLocked()
	s.state.IsPlaying = true
	s.state.CurrentTime = 0
	s.publishLocked(model.TransportState{
		Source:   cur.Source,
		Position: 0,
		Playing:  true,
	})
}

// startPlaybackLocked attempts a programmatic start, downgrading an
// autoplay rejection to a one-time notice.
func (s *Session) startPlaybackLocked() {
	err := s.pl.Play()
	if errors.Is(err, player.ErrAutoplayBlocked) {
		s.noticeAutoplayLocked()
	}
}

func (s *Session) noticeAutoplayLocked() {
	if s.autoplayNoticed {
		return
	}
	s.autoplayNoticed = true
	s.notify("Autoplay is blocked by your browser, press play once to join in.")
}

// onTrackEnd is wired to the player's ended event. Listeners ignore it:
// their transport is driven exclusively by the authoritative feed.
func (s *Session) onTrackEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canControlLocked() != nil {
		return
	}
	q := s.selection.Active()
	switch q.OnTrackEnd(s.state.Shuffle, s.state.Repeat) {
	case player.EndReplay:
		cur, ok := q.Current()
		if !ok {
			return
		}
		s.pl.Seek(0)
		s.startPlaybackLocked()
		s.state.IsPlaying = true
		s.state.CurrentTime = 0
		s.publishLocked(model.TransportState{
			Source:   cur.Source,
			Position: 0,
			Playing:  true,
		})
	case player.EndAdvance:
		s.startCurrentLocked()
	case player.EndStop:
		s.stopPlaybackLocked()
	}
}

// stopPlaybackLocked pauses in place and publishes the stop, so
// listeners halt with the host instead of waiting out a heartbeat.
func (s *Session) stopPlaybackLocked() {
	s.pl.Pause()
	s.state.IsPlaying = false
	cur, ok := s.selection.Active().Current()
	if !ok {
		return
	}
	s.publishLocked(model.TransportState{
		Source:   cur.Source,
		Position: s.pl.CurrentTime(),
		Playing:  false,
	})
}

// ToggleShuffle flips local shuffle mode.
func (s *Session) ToggleShuffle() {
	s.mu.Lock()
	s.state.Shuffle = !s.state.Shuffle
	s.mu.Unlock()
}

// ToggleRepeat cycles off -> all -> one -> off.
func (s *Session) ToggleRepeat() {
	s.mu.Lock()
	s.state.Repeat = s.state.Repeat.Cycle()
	s.mu.Unlock()
}

func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Volume = v
	if s.pl != nil {
		s.pl.SetVolume(v)
	}
}
