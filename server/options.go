package server

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gonzalop/ftpd/config"
	"github.com/gonzalop/ftpd/internal/ratelimit"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithConfig sets the credentials sessions authenticate against.
// This option is required.
//
// Example:
//
//	cfg, _ := config.Load("ftp_server.json")
//	s, _ := server.NewServer(cfg.Addr(), server.WithConfig(cfg), server.WithRoot("ROOT"))
func WithConfig(cfg *config.ServerConfig) Option {
	return func(s *Server) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		s.config = cfg
		return nil
	}
}

// WithRoot sets the server root. Clients can never reach a path outside it.
// This option is required.
func WithRoot(dir string) Option {
	return func(s *Server) error {
		if dir == "" {
			return fmt.Errorf("root directory must not be empty")
		}
		s.rootDir = dir
		return nil
	}
}

// WithStorage replaces the local filesystem with another Storage. The root
// given to WithRoot is interpreted inside it.
//
// Example with an in-memory filesystem:
//
//	fs := afero.NewMemMapFs()
//	_ = fs.MkdirAll("/srv", 0755)
//	s, _ := server.NewServer(":2121",
//	    server.WithConfig(cfg),
//	    server.WithStorage(server.NewAferoStorage(fs)),
//	    server.WithRoot("/srv"),
//	)
func WithStorage(store Storage) Option {
	return func(s *Server) error {
		if s.store != nil {
			return fmt.Errorf("storage already set")
		}
		s.store = store
		return nil
	}
}

// WithLogger sets the logger. If not specified, nothing is logged.
//
// Example:
//
//	logger, _ := zap.NewDevelopment()
//	s, _ := server.NewServer(":2121",
//	    server.WithConfig(cfg),
//	    server.WithRoot("ROOT"),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithMetricsCollector sets the collector notified of commands, transfers,
// connections and logins.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metrics = collector
		return nil
	}
}

// WithWelcomeMessage sets the text of the 220 greeting.
func WithWelcomeMessage(msg string) Option {
	return func(s *Server) error {
		s.welcomeMessage = msg
		return nil
	}
}

// WithServerName sets the system type returned by SYST.
func WithServerName(name string) Option {
	return func(s *Server) error {
		s.serverName = name
		return nil
	}
}

// WithProtectedFile sets the file name hidden from non-admin sessions. The
// name is compared against the last path element anywhere under the root.
// An empty name protects nothing.
func WithProtectedFile(name string) Option {
	return func(s *Server) error {
		if name != "" && name != filepath.Base(name) {
			return fmt.Errorf("protected file %q must be a base name", name)
		}
		s.protectedFile = name
		return nil
	}
}

// WithMaxIdleTime sets the maximum time a connection can be idle before being closed.
// If not specified, defaults to 5 minutes. Zero disables the timeout.
func WithMaxIdleTime(duration time.Duration) Option {
	return func(s *Server) error {
		s.maxIdleTime = duration
		return nil
	}
}

// WithPassiveTimeout bounds how long PASV waits for the client to connect
// and how long an active-mode dial may take. Defaults to 30 seconds.
func WithPassiveTimeout(duration time.Duration) Option {
	return func(s *Server) error {
		s.passiveTimeout = duration
		return nil
	}
}

// WithPassivePortRange restricts passive listeners to [min, max].
func WithPassivePortRange(minPort, maxPort int) Option {
	return func(s *Server) error {
		if minPort <= 0 || maxPort > 65535 || minPort > maxPort {
			return fmt.Errorf("invalid passive port range [%d, %d]", minPort, maxPort)
		}
		s.pasvMinPort, s.pasvMaxPort = minPort, maxPort
		return nil
	}
}

// WithPublicHost sets the IPv4 address or host name advertised in PASV
// replies, for servers behind NAT.
func WithPublicHost(host string) Option {
	return func(s *Server) error {
		s.publicHost = host
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous control
// connections. If 0, there is no limit. This is the default.
//
// When the limit is reached, new connections receive a "421 Too many users" response.
func WithMaxConnections(max int) Option {
	return func(s *Server) error {
		s.maxConnections = max
		return nil
	}
}

// WithBandwidthLimit caps the combined throughput of all data transfers in
// bytes per second. Zero means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		s.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithASCIITranslation enables line-ending conversion for RETR and STOR
// while the session is in TYPE A. Off by default, in which case TYPE only
// records the requested mode.
func WithASCIITranslation(enabled bool) Option {
	return func(s *Server) error {
		s.asciiTranslation = enabled
		return nil
	}
}
