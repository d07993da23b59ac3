package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStream pushes every newly published snapshot to the client.
// Snapshots published between two polls are skipped; the client always
// gets the latest one.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.trackStream() {
		writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer s.streams.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.V(1).Info("WebSocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	logger := s.logger.WithValues("remote", r.RemoteAddr)
	logger.V(1).Info("Stream client connected")

	// Reads only serve control frames and notice the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	poll := s.clock.NewTicker(s.pollInterval)
	defer poll.Stop()
	ping := s.clock.NewTicker(pingPeriod)
	defer ping.Stop()

	var lastSeq uint64
	push := func() bool {
		snap := s.source.Current()
		if snap == nil || snap.Sample == nil || snap.Seq() <= lastSeq {
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(toResponse(snap)); err != nil {
			logger.V(1).Info("Stream write failed", "error", err.Error())
			return false
		}
		lastSeq = snap.Seq()
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-closed:
			logger.V(1).Info("Stream client disconnected")
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-poll.C:
			if !push() {
				return
			}
		}
	}
}
