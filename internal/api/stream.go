package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/snp-search-service/internal/middleware"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Stream event types
const (
	EventPage     = "page"
	EventDownload = "download"
	EventLoading  = "loading"
)

// StreamEvent is a single state change pushed to stream clients
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// handleStream upgrades to a websocket and pushes every page, download and
// loading publish. The current value of each slot is sent on connect.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.WithField("correlation_id", c.GetString(middleware.CorrelationIDKey))
	log.Debug("Stream client connected")

	pages, unsubscribePages := s.service.Pages().Channel()
	defer unsubscribePages()
	downloads, unsubscribeDownloads := s.service.Downloads().Channel()
	defer unsubscribeDownloads()
	loading, unsubscribeLoading := s.service.Loading().Channel()
	defer unsubscribeLoading()

	closed := make(chan struct{})
	go readPump(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var event StreamEvent
		select {
		case <-closed:
			log.Debug("Stream client disconnected")
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case page := <-pages:
			event = StreamEvent{Type: EventPage, Data: page}
		case download := <-downloads:
			event = StreamEvent{Type: EventDownload, Data: download}
		case value := <-loading:
			event = StreamEvent{Type: EventLoading, Data: value}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(event); err != nil {
			log.WithFields(logrus.Fields{"event": event.Type}).WithError(err).Debug("Stream write failed")
			return
		}
	}
}

// readPump drains client frames so control messages are processed, and
// closes done when the connection ends.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
