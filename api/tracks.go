package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"beatsync.fm/model"
	"beatsync.fm/storage"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type trackRequest struct {
	Name     string `json:"name"`
	MediaURL string `json:"media_url"`
	VideoID  string `json:"video_id"`
}

func (r trackRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
	if err != nil {
		return err
	}
	// Exactly one source variant must be present.
	if (r.MediaURL == "") == (r.VideoID == "") {
		return errors.New("exactly one of media_url or video_id is required")
	}
	return nil
}

func (r trackRequest) toTrack(ownerID string) *model.Track {
	src := model.MediaSource(r.MediaURL)
	if r.VideoID != "" {
		src = model.VideoSource(r.VideoID)
	}
	return &model.Track{
		ID:        uuid.NewString(),
		Name:      r.Name,
		Source:    src,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
}

func (api *API) listTracks(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	tracks, err := api.storage.ListUserTracks(id.ID)
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, tracks)
}

// uploadTrack accepts an audio file, stores it in the media dir and
// registers a media track pointing at the served URL.
func (api *API) uploadTrack(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	name := c.FormValue("name")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "file is required")
	}
	if name == "" {
		name = fileHeader.Filename
	}

	src, err := fileHeader.Open()
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	defer src.Close()

	trackID := uuid.NewString()
	fileName := trackID + filepath.Ext(fileHeader.Filename)
	if err = os.MkdirAll(api.config.MediaDir, 0o755); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	dst, err := os.Create(filepath.Join(api.config.MediaDir, fileName))
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	defer dst.Close()
	if _, err = io.Copy(dst, src); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	track := &model.Track{
		ID:        trackID,
		Name:      name,
		Source:    model.MediaSource(api.config.MediaBaseURL + "/" + fileName),
		OwnerID:   id.ID,
		CreatedAt: time.Now().UTC(),
	}
	if !track.Valid() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid track")
	}
	if err = api.storage.AddUserTrack(track); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, track)
}

// addVideoTrack registers an external-video track in the personal
// library; the id usually comes from the search endpoint.
func (api *API) addVideoTrack(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}

	var req trackRequest
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity)
	}
	if err = req.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	track := req.toTrack(id.ID)
	if !track.Valid() {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid track")
	}
	if err = api.storage.AddUserTrack(track); err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, track)
}

func (api *API) deleteTrack(c echo.Context) error {
	id, err := identity(c)
	if err != nil {
		return err
	}
	err = api.storage.RemoveUserTrack(id.ID, c.Param("id"))
	if errors.Is(err, storage.ErrTrackNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "track not found")
	}
	if err != nil {
		log.Error(err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}
