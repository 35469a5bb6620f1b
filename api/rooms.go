package api

import (
	"errors"
	"net/http"
	"time"

	"beatsync.fm/model"
	"beatsync.fm/session"
	"beatsync.fm/storage"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type stateRequest struct {
	TrackRef     string  `json:"current_track_ref"`
	PlaybackTime float64 `json:"playback_time"`
	IsPlaying    bool    `json:"is_playing"`
}

func (r stateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PlaybackTime, validation.Min(0.0)),
	)
}

type memberView struct {
	model.Member
	Online bool `json:"online"`
}

// Room creation endpoint; the caller becomes the room's host.
func (api *API) createRoom(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	room, err := api.storage.CreateRoom(id.ID)
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusConflict)
	}
	return c.JSON(http.StatusOK, room)
}

// Returns room data by its case-normalized code
func (api *API) getRoom(c echo.Context) error {
	room, err := api.storage.GetRoom(model.NormalizeRoomCode(c.Param("code")))
	if errors.Is(err, storage.ErrRoomNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, room)
}

func (api *API) deleteRoom(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	code := model.NormalizeRoomCode(c.Param("code"))

	room, err := api.storage.GetRoom(code)
	if errors.Is(err, storage.ErrRoomNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if !session.IsHost(room, id) {
		return echo.NewHTTPError(http.StatusForbidden, "only the host may delete the room")
	}

	if err = api.storage.DeleteRoom(code); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

// updateRoomState is the authoritative write path over HTTP. Only the
// host passes the gate; listeners get 403.
func (api *API) updateRoomState(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	code := model.NormalizeRoomCode(c.Param("code"))

	room, err := api.storage.GetRoom(code)
	if errors.Is(err, storage.ErrRoomNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	if !session.IsHost(room, id) {
		return echo.NewHTTPError(http.StatusForbidden, "only the host may control playback")
	}

	var req stateRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity)
	}
	if err = req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	src, err := model.ParseRef(req.TrackRef)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	state := model.TransportState{
		Source:   src,
		Position: req.PlaybackTime,
		Playing:  req.IsPlaying,
	}
	if err = api.storage.UpdateRoomState(code, state, id.ID); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *API) listRoomTracks(c echo.Context) error {
	tracks, err := api.storage.ListRoomTracks(model.NormalizeRoomCode(c.Param("code")))
	if errors.Is(err, storage.ErrRoomNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, tracks)
}

func (api *API) addRoomTrack(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	code := model.NormalizeRoomCode(c.Param("code"))

	var req trackRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity)
	}
	if err = req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	track := req.toTrack(id.ID)
	if err = api.storage.AddRoomTrack(code, track); err != nil {
		if errors.Is(err, storage.ErrRoomNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, track)
}

func (api *API) listMembers(c echo.Context) error {
	members, err := api.storage.ListMembers(model.NormalizeRoomCode(c.Param("code")))
	if errors.Is(err, storage.ErrRoomNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	now := time.Now().UTC()
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, memberView{Member: m, Online: m.Online(now, onlineWindow)})
	}
	return c.JSON(http.StatusOK, views)
}

func (api *API) memberHeartbeat(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	code := model.NormalizeRoomCode(c.Param("code"))
	if err = api.storage.TouchMember(code, id.ID, time.Now().UTC()); err != nil {
		log.Warn(err)
		return echo.NewHTTPError(http.StatusNotFound, "member not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (api *API) removeMember(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	code := model.NormalizeRoomCode(c.Param("code"))
	if err = api.storage.RemoveMember(code, id.ID); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
