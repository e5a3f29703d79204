package protocol

import (
	"net"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/xlimdb/internal/config"
	"github.com/kartikbazzad/xlimdb/internal/logger"
	"github.com/kartikbazzad/xlimdb/internal/metrics"
)

// readBufferSize bounds a single read to 4 KiB per command. A connection
// handler that needs more must send a second command; the protocol does
// not reassemble partial reads.
const readBufferSize = 4096

// Server accepts TCP connections and dispatches each command line to a
// Handler. Connection handling runs on a panjf2000/ants worker pool sized
// by cfg.IPC.MaxConnections, falling back to a bare goroutine per
// connection when pooling isn't configured.
type Server struct {
	cfg     *config.Config
	logger  *logger.Logger
	handler *Handler

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	connMu      sync.Mutex
	connections map[net.Conn]bool
	connPool    *ants.Pool
}

// NewServer builds a TCP server dispatching to handler.
func NewServer(cfg *config.Config, log *logger.Logger, handler *Handler) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		cfg:         cfg,
		logger:      log,
		handler:     handler,
		connections: make(map[net.Conn]bool),
	}
}

// Start begins listening and accepting connections in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.cfg.IPC.Address)
	if err != nil {
		return err
	}
	s.listener = listener
	s.running = true

	if s.cfg.IPC.MaxConnections > 0 {
		pool, err := ants.NewPool(s.cfg.IPC.MaxConnections, ants.WithPanicHandler(func(v any) {
			s.logger.Error("connection handler panic: %v", v)
		}))
		if err == nil {
			s.connPool = pool
		} else {
			s.logger.Warn("falling back to unbounded connection goroutines: %v", err)
		}
	}

	s.logger.Info("xlimdb server listening on %s", s.cfg.IPC.Address)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, every live connection, and waits for their
// handlers to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.running = false
	s.mu.Unlock()

	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	if s.connPool != nil {
		_ = s.connPool.ReleaseTimeout(3 * time.Second)
		s.connPool = nil
	}

	s.logger.Info("xlimdb server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			s.logger.Error("accept error: %v", err)
			continue
		}

		s.connMu.Lock()
		s.connections[conn] = true
		s.connMu.Unlock()
		metrics.ConnectionsActive.Inc()

		s.wg.Add(1)
		if s.connPool != nil {
			c := conn
			if err := s.connPool.Submit(func() {
				defer s.wg.Done()
				s.handleConnection(c)
			}); err != nil {
				s.wg.Done()
				c.Close()
				s.connMu.Lock()
				delete(s.connections, c)
				s.connMu.Unlock()
				metrics.ConnectionsActive.Dec()
				s.logger.Error("failed to submit connection handler: %v", err)
			}
		} else {
			go func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	sess := NewSession()
	defer func() {
		s.handler.DisconnectCleanup(sess)
		conn.Close()
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
		metrics.ConnectionsActive.Dec()
	}()

	s.logger.Debug("new connection from %s", conn.RemoteAddr())

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err != net.ErrClosed {
				s.logger.Debug("connection closed: %v", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		req := ParseRequest(string(buf[:n]))
		reply := s.handler.Handle(sess, req)

		if _, err := conn.Write([]byte(reply)); err != nil {
			s.logger.Error("failed to write reply: %v", err)
			return
		}
	}
}
