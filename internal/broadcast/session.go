package broadcast

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lvdashuaibi/livevote/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// Session is one live viewer connection. It carries no vote authority;
// it exists purely so the hub can fan events out to it. Sessions live
// only in memory: a process restart disconnects everyone.
type Session struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
}

// NewSession wraps an upgraded websocket connection.
func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// Serve registers the session, pushes one tally-update snapshot so the
// viewer starts from current state, and pumps until the peer goes
// away. Blocks until the connection is closed.
func (s *Session) Serve(hub *Hub, snapshot model.Tally) {
	frame, err := snapshotFrame(snapshot)
	if err != nil {
		log.Printf("session %s: %v", s.ID, err)
	} else {
		s.send <- frame
	}

	hub.Register(s)
	go s.writePump()
	s.readPump(hub)
}

// readPump discards inbound frames (the push channel needs no
// handshake or client messages) and exists to detect the close.
func (s *Session) readPump(hub *Hub) {
	defer func() {
		hub.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("session %s read error: %v", s.ID, err)
			}
			return
		}
	}
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings. A closed send channel (the hub dropped
// or stopped us) closes the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
