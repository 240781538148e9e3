package monitor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mklimuk/airsense/co2"
)

const (
	writeWait   = 5 * time.Second
	clientQueue = 16
)

// Event is the JSON message pushed to stream clients.
type Event struct {
	SerialNumber string    `json:"serial_number"`
	Time         time.Time `json:"time"`
	co2.Sample
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Stream pushes every published sample to connected websocket clients. New
// clients receive the last sample right away. Slow clients are disconnected.
type Stream struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	mx      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

func NewStream(logger *slog.Logger) *Stream {
	return &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		now:     time.Now,
		clients: make(map[*client]struct{}),
	}
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueue)}
	s.mx.Lock()
	if s.last != nil {
		c.send <- s.last
	}
	s.clients[c] = struct{}{}
	s.mx.Unlock()
	s.logger.Debug("stream client connected", "remote", r.RemoteAddr)

	go s.write(c)
	// the read loop only notices the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.remove(c)
	s.logger.Debug("stream client disconnected", "remote", r.RemoteAddr)
}

func (s *Stream) write(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Debug("stream write failed", "error", err)
			s.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (s *Stream) remove(c *client) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Stream) Publish(serial string, sample co2.Sample) {
	msg, err := json.Marshal(Event{SerialNumber: serial, Time: s.now(), Sample: sample})
	if err != nil {
		s.logger.Error("could not encode sample", "error", err)
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.last = msg
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.logger.Warn("dropping slow stream client")
			delete(s.clients, c)
			close(c.send)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.clients)
}

// Close disconnects all clients.
func (s *Stream) Close() {
	s.mx.Lock()
	defer s.mx.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}
