package controller

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"finchat/service"
)

const (
	wsSendBuffer   = 64
	wsReadLimit    = 4096
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

// EventsController streams hub events over WebSocket.
type EventsController struct {
	hub      *service.Hub
	logger   logrus.FieldLogger
	upgrader websocket.Upgrader
}

// NewEventsController accepts browser connections only from allowedOrigin,
// the same origin CORS admits. Clients that send no Origin are not browsers
// and are let through.
func NewEventsController(hub *service.Hub, allowedOrigin string, logger logrus.FieldLogger) *EventsController {
	return &EventsController{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowedOrigin == "*" || strings.EqualFold(origin, allowedOrigin)
			},
		},
	}
}

// Stream serves /v1/events/ws. The optional events query param is a comma
// separated filter of event names.
func (e *EventsController) Stream(c *gin.Context) {
	var filter map[string]bool
	if param := c.Query("events"); param != "" {
		filter = make(map[string]bool)
		for _, name := range strings.Split(param, ",") {
			if name = strings.TrimSpace(name); name != "" {
				filter[name] = true
			}
		}
	}

	requestID := c.GetString("requestId")
	sendCh := make(chan service.Event, wsSendBuffer)
	// subscribe before the handshake completes so no event after it is missed
	unsubscribe := e.hub.Subscribe(func(ev service.Event) {
		if filter != nil && !filter[ev.Name] {
			return
		}
		select {
		case sendCh <- ev:
		default:
			e.logger.Warnf("[%s] Dropped event %s, buffer full", requestID, ev.Name)
		}
	})
	defer unsubscribe()

	conn, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		e.logger.Warnf("[%s] WebSocket upgrade failed: %s", requestID, err)
		return
	}
	defer conn.Close()
	e.logger.Infof("[%s] Event stream opened", requestID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return fn()
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-done:
			e.logger.Infof("[%s] Event stream closed", requestID)
			return
		case <-ticker.C:
			if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
				return
			}
		case ev := <-sendCh:
			if err := write(func() error { return conn.WriteJSON(ev) }); err != nil {
				return
			}
		}
	}
}
