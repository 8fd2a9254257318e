package server

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gonzalop/ftpd/config"
	"github.com/gonzalop/ftpd/internal/ratelimit"
)

// Server is the FTP server.
//
// It listens for control connections and runs one session per connection,
// each in its own goroutine. Sessions share the read-only configuration and
// the storage backend; nothing else crosses session boundaries.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Server runs until Shutdown() is called or the listener fails
//
// Basic example:
//
//	cfg, _ := config.Load("ftp_server.json")
//	s, err := server.NewServer(cfg.Addr(),
//	    server.WithConfig(cfg),
//	    server.WithRoot("/srv/ftp"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
type Server struct {
	// addr is the TCP address to listen on (e.g., "127.0.0.1:2121").
	addr string

	// config holds the administrator and user credentials.
	config *config.ServerConfig

	// store is the file store; rootDir is the server root inside it.
	store    Storage
	rootDir  string
	resolver *Resolver

	logger  *zap.Logger
	metrics MetricsCollector

	// welcomeMessage is the text of the 220 greeting.
	welcomeMessage string

	// serverName is the system type returned by SYST.
	serverName string

	// protectedFile is the base name only an administrator may list, read
	// or overwrite.
	protectedFile string

	// maxIdleTime closes a control connection with no complete command
	// line for that long. Zero disables the timeout.
	maxIdleTime time.Duration

	// passiveTimeout bounds the wait for a peer after a 227 reply and the
	// dial of an active-mode connection.
	passiveTimeout time.Duration

	// Passive listener port range. Zero means any port.
	pasvMinPort     int
	pasvMaxPort     int
	nextPassivePort atomic.Int32

	// publicHost is advertised in PASV replies instead of the control
	// connection's local address.
	publicHost string
	publicIP   net.IP

	// maxConnections is the maximum number of simultaneous control
	// connections. If 0, there is no limit.
	maxConnections int
	activeConns    atomic.Int32

	// limiter throttles all data streams together. Nil means unlimited.
	limiter *ratelimit.Limiter

	// asciiTranslation converts line endings while TYPE A is active.
	asciiTranslation bool

	// Shutdown handling
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
}

// NewServer creates a new FTP server with the given address and options.
// The address should be in the form ":port" or "host:port".
// WithConfig and WithRoot are required.
//
// Default values:
//   - Logger: zap.NewNop()
//   - Storage: the local filesystem
//   - ProtectedFile: "config.json"
//   - MaxIdleTime: 5 minutes
//   - PassiveTimeout: 30 seconds
//   - MaxConnections: 0 (unlimited)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:           addr,
		logger:         zap.NewNop(),
		welcomeMessage: "Welcome to the FTP server.",
		serverName:     "UNIX Type: L8",
		protectedFile:  config.DefaultProtectedFile,
		maxIdleTime:    config.DefaultIdleTimeout,
		passiveTimeout: config.DefaultPassiveAcceptTimeout,
		conns:          make(map[net.Conn]struct{}),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.config == nil {
		return nil, fmt.Errorf("config is required (use WithConfig option)")
	}
	if s.rootDir == "" {
		return nil, fmt.Errorf("root directory is required (use WithRoot option)")
	}
	if s.store == nil {
		s.store = NewOSStorage()
	}

	resolver, err := NewResolver(s.store, s.rootDir)
	if err != nil {
		return nil, err
	}
	s.resolver = resolver

	if s.publicHost != "" && net.ParseIP(s.publicHost) == nil {
		s.publicIP = lookupIPv4(s.publicHost)
		if s.publicIP == nil {
			return nil, fmt.Errorf("public host %q has no IPv4 address", s.publicHost)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

func lookupIPv4(host string) net.IP {
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4
		}
	}
	return nil
}

// Root returns the canonical server root.
func (s *Server) Root() string {
	return s.resolver.Root()
}

// ListenAndServe starts the FTP server on the configured address.
// It blocks until the server stops or an error occurs.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("FTP server listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("root", s.resolver.Root()),
	)
	return s.Serve(ln)
}

// Shutdown stops the server.
//
// It closes the listener and immediately closes all active control and data
// connections. Serve returns ErrServerClosed.
func (s *Server) Shutdown() error {
	s.inShutdown.Store(true)
	s.cancel()

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for conn := range maps.Keys(conns) {
		conn.Close()
	}
	return err
}

// Serve accepts incoming connections on the listener l.
// It blocks until Shutdown is called or the listener fails.
//
// Each connection is handled in a separate goroutine. Accept failures are
// logged and do not stop the server.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	var tempDelay time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(2*tempDelay, time.Second)
			}
			s.logger.Error("accept error", zap.Error(err), zap.Duration("retry_in", tempDelay))
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		go s.handleConnection(conn)
	}
}

// handleConnection handles a new client connection.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		return
	}
	defer s.trackConnection(conn, false)

	defer s.activeConns.Add(-1)
	if n := s.activeConns.Add(1); s.maxConnections > 0 && n > int32(s.maxConnections) {
		ip := remoteHost(conn)
		s.logger.Warn("connection_rejected",
			zap.String("remote_ip", ip),
			zap.String("reason", "global_limit_reached"),
			zap.Int("limit", s.maxConnections),
		)
		s.recordConnection(false, "global_limit_reached")
		_, _ = conn.Write(EncodeReply(CodeServiceNotAvailable, "Too many users, sorry."))
		conn.Close()
		return
	}

	s.recordConnection(true, "accepted")

	newSession(s, conn).serve()
}

// trackConnection registers or unregisters a control or data connection.
// It returns false, closing conn, if the server is shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, conn)
		return true
	}
	if s.inShutdown.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) recordConnection(accepted bool, reason string) {
	if s.metrics != nil {
		s.metrics.RecordConnection(accepted, reason)
	}
}

func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
