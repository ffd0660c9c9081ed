// ABOUTME: Websocket re-streaming of replay frames to bench clients
// ABOUTME: JSON settings handshake on connect, then binary frame messages
package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/megamicros/megamicros-go/internal/version"
)

const writeTimeout = 5 * time.Second

// Handshake is the first message every client receives: the settings
// it needs to interpret the binary frames that follow.
type Handshake struct {
	Product           string  `json:"product"`
	Version           string  `json:"version"`
	RunID             string  `json:"run_id"`
	SamplingFrequency float64 `json:"sampling_frequency"`
	Channels          int     `json:"channels"`
	FrameLength       int     `json:"frame_length"`
	Datatype          string  `json:"datatype"`
}

// Server serves the replay stream over websocket on /stream.
type Server struct {
	log      *zap.Logger
	hs       Handshake
	b        *Broadcaster
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// NewServer prepares a stream server around the given broadcaster.
func NewServer(hs Handshake, b *Broadcaster, log *zap.Logger) *Server {
	hs.Product = version.Product
	hs.Version = version.Version

	return &Server{
		log: log,
		hs:  hs,
		b:   b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Start listens on addr in the background.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)

	s.httpSrv = &http.Server{Addr: addr, Handler: mux}

	ln := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ln <- err
			s.log.Error("stream server failed", zap.Error(err))
		}
	}()

	// Give an immediate bind failure a moment to surface.
	select {
	case err := <-ln:
		return fmt.Errorf("stream server listen failed: %w", err)
	case <-time.After(100 * time.Millisecond):
		s.log.Info("stream server listening", zap.String("addr", addr))
		return nil
	}
}

// Shutdown stops the listener and ends every client stream.
func (s *Server) Shutdown(ctx context.Context) error {
	s.b.CloseAll()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.log.Info("stream client connected", zap.String("remote", conn.RemoteAddr().String()))

	if err := conn.WriteJSON(s.hs); err != nil {
		s.log.Warn("handshake write failed", zap.Error(err))
		return
	}

	l := s.b.Subscribe()
	defer s.b.Unsubscribe(l)

	// Drain the read side so close frames are noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload := <-l.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				s.log.Info("stream client dropped", zap.Error(err))
				return
			}
		case <-l.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replay ended"))
			return
		case <-gone:
			return
		}
	}
}
