package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// dataChannel tracks the single data connection a session may hold.
//
// States:
//
//	closed --PASV--> listening --accept--> open --transfer--> closed
//	closed --PORT--> pending   --dial-->   open --transfer--> closed
//
// Only one channel is open at a time. Closing is idempotent and always
// shuts down both halves of the connection.
type dataChannel struct {
	conn       net.Conn
	activeAddr string
	timeout    time.Duration

	// track registers and unregisters the open connection with the server
	// so Shutdown can interrupt a transfer.
	track func(conn net.Conn, add bool) bool
}

// isOpen reports whether a connection is established.
func (d *dataChannel) isOpen() bool {
	return d.conn != nil
}

// ready reports whether a transfer command can obtain a connection, either
// because one is open or because an active-mode address is pending.
func (d *dataChannel) ready() bool {
	return d.conn != nil || d.activeAddr != ""
}

// setActive records the address a later transfer dials.
func (d *dataChannel) setActive(addr string) error {
	if d.isOpen() {
		return ErrDataChannelOpen
	}
	d.activeAddr = addr
	return nil
}

// accept waits for exactly one peer on ln and discards the listener. The
// wait is bounded by the channel timeout and by ctx.
func (d *dataChannel) accept(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	if d.isOpen() {
		return ErrDataChannelOpen
	}

	if tl, ok := ln.(*net.TCPListener); ok && d.timeout > 0 {
		_ = tl.SetDeadline(time.Now().Add(d.timeout))
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	return d.attach(conn)
}

// establish returns the open connection, dialing the pending active-mode
// address first if needed. reused is true when the connection was already
// open before the call.
func (d *dataChannel) establish(ctx context.Context) (conn net.Conn, reused bool, err error) {
	if d.conn != nil {
		return d.conn, true, nil
	}
	if d.activeAddr == "" {
		return nil, false, ErrNoDataChannel
	}

	addr := d.activeAddr
	d.activeAddr = ""
	dialer := net.Dialer{Timeout: d.timeout}
	c, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, false, err
	}
	if err := d.attach(c); err != nil {
		return nil, false, err
	}
	return d.conn, false, nil
}

func (d *dataChannel) attach(conn net.Conn) error {
	if d.track != nil && !d.track(conn, true) {
		conn.Close()
		return ErrServerClosed
	}
	d.conn = conn
	d.activeAddr = ""
	return nil
}

// close drops the channel and any pending active-mode address.
func (d *dataChannel) close() error {
	d.activeAddr = ""
	if d.conn == nil {
		return nil
	}
	conn := d.conn
	d.conn = nil
	if d.track != nil {
		d.track(conn, false)
	}

	var result *multierror.Error
	if hc, ok := conn.(interface {
		CloseRead() error
		CloseWrite() error
	}); ok {
		if err := hc.CloseWrite(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
		if err := hc.CloseRead(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// listenPassive opens a passive listener on host. A non-zero hint is tried
// exclusively; otherwise the configured port range is walked round-robin,
// and without a range the OS picks the port.
func (srv *Server) listenPassive(host string, hint int) (net.Listener, error) {
	if hint > 0 {
		return net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(hint)))
	}

	minPort, maxPort := srv.pasvMinPort, srv.pasvMaxPort
	if minPort > 0 && maxPort >= minPort {
		rangeLen := int32(maxPort - minPort + 1)
		start := srv.nextPassivePort.Add(1)
		for i := int32(0); i < rangeLen; i++ {
			port := minPort + int((start+i)%rangeLen)
			ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err == nil {
				return ln, nil
			}
		}
		return nil, fmt.Errorf("no available ports in range [%d, %d]", minPort, maxPort)
	}
	return net.Listen("tcp", net.JoinHostPort(host, "0"))
}

// passiveAddress formats the 227 payload "h1,h2,h3,h4,p1,p2". A nil or
// non-IPv4 address is reported as 0,0,0,0.
func passiveAddress(ip net.IP, port int) string {
	octets := []string{"0", "0", "0", "0"}
	if v4 := ip.To4(); v4 != nil {
		octets = strings.Split(v4.String(), ".")
	}
	return fmt.Sprintf("%s,%s,%s,%s,%d,%d", octets[0], octets[1], octets[2], octets[3], port>>8, port&0xFF)
}

// advertisedIP returns the IPv4 address to report in a PASV reply: the
// configured public host if any, else the control connection's local address.
func (srv *Server) advertisedIP(local net.Addr) net.IP {
	if srv.publicHost != "" {
		if ip := net.ParseIP(srv.publicHost); ip != nil {
			return ip
		}
		if srv.publicIP != nil {
			return srv.publicIP
		}
	}
	if tcp, ok := local.(*net.TCPAddr); ok {
		return tcp.IP
	}
	return nil
}
