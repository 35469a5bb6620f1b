package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"beatsync.fm/config"
	"beatsync.fm/model"
	"beatsync.fm/pkg/changefeed"
	"beatsync.fm/pkg/utils"
	"beatsync.fm/pkg/websocket"
	"beatsync.fm/pkg/youtube"
	"beatsync.fm/storage"
	"github.com/gammazero/workerpool"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
)

const (
	chatChannelPrefix = "room_chat:"

	// A member is shown online while its presence heartbeat is younger
	// than this.
	onlineWindow = 20 * time.Second
)

type API struct {
	echo       *echo.Echo
	config     *config.Config
	storage    storage.Storage
	feed       changefeed.Broker
	channels   websocket.Channels
	workerPool *workerpool.WorkerPool
	yt         *youtube.Client
}

func New(c *config.Config, s storage.Storage, feed changefeed.Broker, yt *youtube.Client) *API {
	api := &API{
		echo:       echo.New(),
		config:     c,
		storage:    s,
		feed:       feed,
		channels:   websocket.NewChannels(),
		workerPool: workerpool.New(c.MaxWorkers),
		yt:         yt,
	}

	api.echo.HideBanner = true
	api.echo.Use(middleware.CORS())
	api.echo.Static("/media", c.MediaDir)

	api.echo.GET("/", api.ping)

	api.echo.POST("/rooms", api.createRoom)
	api.echo.GET("/rooms/:code", api.getRoom)
	api.echo.DELETE("/rooms/:code", api.deleteRoom)
	api.echo.PUT("/rooms/:code/state", api.updateRoomState)
	api.echo.GET("/rooms/:code/tracks", api.listRoomTracks)
	api.echo.POST("/rooms/:code/tracks", api.addRoomTrack)
	api.echo.GET("/rooms/:code/members", api.listMembers)
	api.echo.POST("/rooms/:code/heartbeat", api.memberHeartbeat)
	api.echo.DELETE("/rooms/:code/members/me", api.removeMember)

	api.echo.GET("/tracks", api.listTracks)
	api.echo.POST("/tracks", api.uploadTrack)
	api.echo.POST("/tracks/video", api.addVideoTrack)
	api.echo.DELETE("/tracks/:id", api.deleteTrack)

	api.echo.GET("/videos/search", api.searchVideos)

	api.echo.Any("/ws", api.websocket)

	return api
}

func (api *API) Start() error {
	err := api.feed.Subscribe(storage.RoomChannelPrefix+"*", api.pushRoomUpdate)
	if err != nil {
		return err
	}
	err = api.feed.Subscribe(chatChannelPrefix+"*", api.pushChat)
	if err != nil {
		return err
	}
	return api.echo.Start(":" + strconv.Itoa(api.config.HttpPort))
}

func (api *API) Close(ctx context.Context) error {
	api.workerPool.StopWait()
	_ = api.feed.Unsubscribe(storage.RoomChannelPrefix+"*", chatChannelPrefix+"*")
	return api.echo.Shutdown(ctx)
}

// identity reads the opaque user identity supplied by the session
// provider in front of us. The core only ever relies on the id.
func identity(c echo.Context) (model.Identity, error) {
	id := strings.TrimSpace(c.Request().Header.Get("X-User-Id"))
	if id == "" {
		return model.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}
	return model.Identity{
		ID:    id,
		Email: c.Request().Header.Get("X-User-Email"),
	}, nil
}

// Ping handler
func (api *API) ping(c echo.Context) error {
	_, err := api.storage.IncrVisits()
	if err != nil {
		log.Error(err)
	}
	return c.String(http.StatusOK, "OK")
}

// Endpoint to establish websocket connection
func (api *API) websocket(c echo.Context) error {
	userID := c.QueryParam("user_id")
	email := c.QueryParam("email")
	roomCode := model.NormalizeRoomCode(c.QueryParam("room_code"))
	if !api.storage.RoomExist(roomCode) {
		return c.NoContent(http.StatusNotFound)
	}
	if userID == "" {
		return c.NoContent(http.StatusUnprocessableEntity)
	}

	conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
	if err != nil {
		log.Warn(err)
		return c.NoContent(http.StatusBadRequest)
	}

	now := time.Now().UTC()
	member := &model.Member{
		ID:       uuid.NewString(),
		UserID:   userID,
		Email:    email,
		RoomCode: roomCode,
		JoinedAt: now,
		LastSeen: now,
		Conn:     conn,
	}
	if err = api.storage.AddMember(member); err != nil {
		log.Warn(err)
	}
	api.serveMember(member)
	return nil
}

// Serves member websocket connection
func (api *API) serveMember(m *model.Member) {
	done := make(chan bool)

	onConnect := func() {
		api.channels.Subscribe(m, m.RoomCode)
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := wsutil.WriteServerMessage(m.Conn, ws.OpPing, []byte("ping"))
				if err != nil {
					log.Warn(err)
				}
			}
		}
	}

	onDisconnect := func() {
		done <- true
		_ = m.Conn.Close()
		api.channels.Unsubscribe(m, m.RoomCode)
		log.Infof("member %s disconnected from room %s", m.UserID, m.RoomCode)
	}

	sendResponse := func(ID string, code int) {
		res := &websocket.Response{
			ID: ID,
			Result: map[string]interface{}{
				"success": code == 200,
				"code":    code,
			},
		}

		b, err := json.Marshal(res)
		if err != nil {
			log.Error(err)
		} else {
			err = wsutil.WriteServerText(m.Conn, b)
			if err != nil {
				log.Error(err)
			}
		}
	}

	go onConnect()
	defer onDisconnect()

	for {
		b, err := wsutil.ReadClientText(m.Conn)
		if err != nil {
			break
		}

		var req websocket.Request
		err = json.Unmarshal(b, &req)
		if err != nil {
			sendResponse("", 422)
			continue
		}

		if err = req.Validate(); err != nil {
			log.Warn(err)
			sendResponse(req.ID, 422)
			continue
		}

		req.UserID = m.UserID
		req.RoomCode = m.RoomCode
		req.SentAt = time.Now()
		b, err = json.Marshal(&req)
		if err != nil {
			log.Error(err)
			sendResponse(req.ID, 500)
			continue
		}

		err = api.feed.Publish(b, chatChannelPrefix+m.RoomCode)
		if err != nil {
			log.Warn(err)
			sendResponse(req.ID, 500)
		} else {
			sendResponse(req.ID, 200)
		}
	}
}

type pushEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// pushRoomUpdate fans an authoritative room change out to every live
// connection in that room.
func (api *API) pushRoomUpdate(ev *changefeed.Event) {
	api.push("room_update", storage.RoomChannelPrefix, ev)
}

// pushChat relays chat frames room-wide. Messages are not stored.
func (api *API) pushChat(ev *changefeed.Event) {
	api.push("chat_message", chatChannelPrefix, ev)
}

func (api *API) push(kind, prefix string, ev *changefeed.Event) {
	api.workerPool.Submit(func() {
		if len(ev.Channel) <= len(prefix) {
			return
		}
		roomCode := ev.Channel[len(prefix):]
		b, err := json.Marshal(&pushEnvelope{Type: kind, Data: ev.Payload})
		if err != nil {
			log.Error(err)
			return
		}
		for _, m := range api.channels.GetSubscribers(roomCode) {
			if err := wsutil.WriteServerText(m.Conn, b); err != nil {
				log.Warn(err)
			}
		}
	})
}

// searchVideos proxies the external video search API.
func (api *API) searchVideos(c echo.Context) error {
	if api.yt == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "video search is not configured")
	}
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "query is required")
	}
	limit := utils.ParseInt(c.QueryParam("limit"), 10, 1, 25)

	videos, err := api.yt.Search(c.Request().Context(), query, limit)
	if err != nil {
		log.Warn(err)
		return echo.NewHTTPError(http.StatusBadGateway)
	}
	return c.JSON(http.StatusOK, videos)
}
