package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"theatre.live/config"
	"theatre.live/model"
	"theatre.live/pkg/cors"
	"theatre.live/pkg/msgbroker"
	"theatre.live/pkg/utils"
	"theatre.live/pkg/websocket"
	"theatre.live/storage"
)

type API struct {
	echo            *echo.Echo
	config          *config.Config
	rooms           storage.Rooms
	stats           storage.Stats
	registry        *websocket.Registry
	msgBroker       msgbroker.MessageBroker
	workerPool      *workerpool.WorkerPool
	messagesChannel string
	announceChannel string
}

func New(c *config.Config, rooms storage.Rooms, stats storage.Stats, mb msgbroker.MessageBroker) *API {
	api := &API{
		echo:            echo.New(),
		config:          c,
		rooms:           rooms,
		stats:           stats,
		registry:        websocket.NewRegistry(),
		msgBroker:       mb,
		workerPool:      workerpool.New(c.MaxWorkers),
		messagesChannel: "messages:",
		announceChannel: "announce:",
	}

	api.echo.HideBanner = true
	api.echo.Use(cors.Middleware)

	api.echo.GET("/", api.ping)
	api.echo.POST("/room", api.createRoom)
	api.echo.GET("/room/:roomID", api.getRoom)
	api.echo.GET("/stats", api.getStats)
	api.echo.Any("/ws", api.websocket)

	return api
}

func (api *API) Start() error {
	if api.msgBroker != nil {
		err := api.msgBroker.Subscribe(api.announceChannel+"*", api.handleAnnouncements)
		if err != nil {
			return err
		}
	}
	return api.echo.Start(":" + strconv.Itoa(api.config.HttpPort))
}

func (api *API) Close(ctx context.Context) error {
	api.workerPool.StopWait()
	return api.echo.Shutdown(ctx)
}

// Ping handler
func (api *API) ping(c echo.Context) error {
	if api.stats != nil {
		_, err := api.stats.IncrVisits()
		if err != nil {
			log.Error(err)
		}
	}
	return c.String(http.StatusOK, "OK")
}

// Allocates an unused room id. The room itself is created lazily when the
// first participant joins it over the websocket.
func (api *API) createRoom(c echo.Context) error {
	for i := 5; i <= 15; i++ {
		id := utils.RandString(i)
		if !api.rooms.Exist(id) {
			return c.JSON(http.StatusOK, map[string]string{"id": id})
		}
	}
	return echo.NewHTTPError(http.StatusConflict)
}

// Returns a snapshot of a live room by roomID
func (api *API) getRoom(c echo.Context) error {
	roomID := c.Param("roomID")
	room, exists := api.rooms.Snapshot(roomID)
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, room)
}

// Returns daily visit counters for the last ?days days
func (api *API) getStats(c echo.Context) error {
	if api.stats == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable)
	}

	days := utils.ParseInt(c.QueryParam("days"), 1, 1, 30)
	result := make([]map[string]interface{}, 0, days)
	for i := 0; i < days; i++ {
		date := time.Now().AddDate(0, 0, -i)
		visits, err := api.stats.VisitsByDate(date)
		if err != nil {
			visits = 0
		}
		result = append(result, map[string]interface{}{
			"date":   date.Format("02.01.06"),
			"visits": visits,
		})
	}
	return c.JSON(http.StatusOK, result)
}

// Endpoint to establish websocket connection
func (api *API) websocket(c echo.Context) error {
	conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
	if err != nil {
		log.Warn(err)
		return c.NoContent(http.StatusBadRequest)
	}

	u := &model.User{
		ID:   utils.RandString(12),
		Conn: conn,
	}
	api.serveUser(u)
	return nil
}

// Serves user websocket connection
func (api *API) serveUser(u *model.User) {
	api.registry.Register(u)
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(time.Second * 30)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := u.Ping(); err != nil {
					log.Warn(err)
				}
			}
		}
	}()

	defer func() {
		close(done)
		_ = u.Conn.Close()
		api.registry.Deregister(u)
		api.disconnect(u)
		log.Infof("connection %s closed", u.ID)
	}()

	api.send(u, websocket.EvtConnected, &websocket.ConnectedParams{ID: u.ID})

	for {
		b, err := wsutil.ReadClientText(u.Conn)
		if err != nil {
			break
		}

		var ev websocket.Event
		if err = json.Unmarshal(b, &ev); err != nil {
			log.Warn(err)
			continue
		}

		if err = ev.Validate(); err != nil {
			log.Warn(err)
			continue
		}

		api.dispatch(u, &ev)
	}
}
