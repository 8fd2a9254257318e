// Package server implements a small multi-client FTP server.
//
// # Overview
//
// The server speaks the core of RFC 959 over plain TCP:
//   - Login with USER and PASS against a fixed set of credentials
//   - Directory navigation with CWD, CDUP and PWD
//   - MKD and RMD (recursive)
//   - RETR, STOR and LIST over a passive (PASV) or active (PORT) data connection
//   - TYPE, SYST, NOOP and QUIT
//
// Every client path is resolved against a single server root. Paths that
// leave it, lexically or through a symbolic link, are refused.
//
// # Getting Started
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/gonzalop/ftpd/config"
//	    "github.com/gonzalop/ftpd/server"
//	)
//
//	func main() {
//	    cfg, err := config.LoadOrCreate("ftp_server.json")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    s, err := server.NewServer(cfg.Addr(),
//	        server.WithConfig(cfg),
//	        server.WithRoot("ROOT"),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    log.Fatal(s.ListenAndServe())
//	}
//
// # Sessions
//
// Each control connection runs in its own goroutine and processes commands
// strictly in order: one command is read, handled to completion (including
// any data transfer) and answered before the next is read. A session holds
// at most one data connection, which is closed after every transfer.
//
// # Protected File
//
// One base name (by default "config.json") is hidden from non-admin
// sessions: it is left out of listings and cannot be read or overwritten.
// The administrator account sees and may change it.
//
// # Passive Mode Configuration
//
// When behind NAT, advertise a public address and restrict the passive port
// range so the firewall can be opened for it:
//
//	s, _ := server.NewServer(":2121",
//	    server.WithConfig(cfg),
//	    server.WithRoot("/srv/ftp"),
//	    server.WithPublicHost("ftp.example.com"),
//	    server.WithPassivePortRange(30000, 30100),
//	)
//
// # Server Configuration
//
// Connection limits, timeouts and logging:
//
//	logger, _ := zap.NewProduction()
//	s, _ := server.NewServer(":2121",
//	    server.WithConfig(cfg),
//	    server.WithRoot("/srv/ftp"),
//	    server.WithMaxConnections(100),
//	    server.WithMaxIdleTime(10*time.Minute),
//	    server.WithBandwidthLimit(10<<20),
//	    server.WithLogger(logger),
//	)
//
// Storage other than the local disk can be plugged in with WithStorage and
// any afero filesystem.
//
// # Troubleshooting
//
// Problem: Passive mode connections fail
//   - Solution: Set WithPublicHost to your public IP or host name
//   - Solution: Ensure the firewall allows the passive port range
//
// Problem: Connection refused on port 21
//   - Solution: Port 21 requires root/admin privileges on most systems
//   - Solution: Use a higher port (e.g., :2121) for development
package server
