package server

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpd/config"
)

func fatalIfErr(t *testing.T, err error, format string, args ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatalf(format+": %v", append(args, err)...)
	}
}

// testConfig has one admin, one user with a password and one without.
func testConfig() *config.ServerConfig {
	return &config.ServerConfig{
		Host:  "127.0.0.1",
		Port:  2121,
		Admin: &config.Credential{Username: "admin", Password: "adminpw"},
		Users: []config.Credential{
			{Username: "alice", Password: "secret"},
			{Username: "guest"},
		},
	}
}

// startServer runs a server on a random loopback port rooted at a fresh
// temporary directory. It returns the server, its address and the root.
func startServer(t *testing.T, opts ...Option) (*Server, string, string) {
	t.Helper()
	root := t.TempDir()
	opts = append([]Option{WithConfig(testConfig()), WithRoot(root)}, opts...)

	srv, err := NewServer("127.0.0.1:0", opts...)
	fatalIfErr(t, err, "NewServer")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "Listen")

	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv, ln.Addr().String(), root
}

// rawConn drives the control connection by hand.
type rawConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// dialRaw connects and consumes the greeting.
func dialRaw(t *testing.T, addr string) *rawConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(t, err, "Dial")
	t.Cleanup(func() { conn.Close() })

	c := &rawConn{t: t, conn: conn, r: bufio.NewReader(conn)}
	code, line := c.readReply()
	require.Equal(t, 220, code, line)
	return c
}

func (c *rawConn) readReply() (int, string) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	fatalIfErr(c.t, err, "reading reply")
	line = strings.TrimRight(line, "\r\n")
	require.GreaterOrEqual(c.t, len(line), 3, "short reply %q", line)
	code, err := strconv.Atoi(line[:3])
	fatalIfErr(c.t, err, "reply code in %q", line)
	return code, line
}

func (c *rawConn) send(format string, args ...interface{}) {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	fatalIfErr(c.t, err, "sending command")
}

// cmd sends one command and returns its reply.
func (c *rawConn) cmd(format string, args ...interface{}) (int, string) {
	c.t.Helper()
	c.send(format, args...)
	return c.readReply()
}

func (c *rawConn) expect(code int, format string, args ...interface{}) string {
	c.t.Helper()
	got, line := c.cmd(format, args...)
	require.Equal(c.t, code, got, "%s -> %s", fmt.Sprintf(format, args...), line)
	return line
}

func (c *rawConn) login(user, pass string) {
	c.t.Helper()
	c.expect(331, "USER %s", user)
	c.expect(230, "PASS %s", pass)
}

// pasv issues PASV and connects to the announced address.
func (c *rawConn) pasv() net.Conn {
	c.t.Helper()
	line := c.expect(227, "PASV")
	start, end := strings.Index(line, "("), strings.LastIndex(line, ")")
	require.True(c.t, start > 0 && end > start, "malformed 227: %q", line)

	fields := strings.Split(line[start+1:end], ",")
	require.Len(c.t, fields, 6)
	p1, _ := strconv.Atoi(fields[4])
	p2, _ := strconv.Atoi(fields[5])
	host := strings.Join(fields[:4], ".")

	data, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(p1<<8|p2)), 5*time.Second)
	fatalIfErr(c.t, err, "dialing data connection")
	c.t.Cleanup(func() { data.Close() })
	return data
}

// dialFTP connects with a real FTP client and logs in.
func dialFTP(t *testing.T, addr, user, pass string) *ftp.ServerConn {
	t.Helper()
	c, err := ftp.Dial(addr, ftp.DialWithTimeout(5*time.Second), ftp.DialWithDisabledEPSV(true))
	fatalIfErr(t, err, "ftp.Dial")
	t.Cleanup(func() { _ = c.Quit() })
	fatalIfErr(t, c.Login(user, pass), "Login %s", user)
	return c
}

// portFromFields returns the port of a split 227 payload as a string.
func portFromFields(fields []string) string {
	p1, _ := strconv.Atoi(strings.TrimSpace(fields[4]))
	p2, _ := strconv.Atoi(strings.TrimSpace(fields[5]))
	return strconv.Itoa(p1<<8 | p2)
}

// rawDial connects without reading the greeting.
func rawDial(t *testing.T, addr string) *rawConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(t, err, "Dial")
	t.Cleanup(func() { conn.Close() })
	return &rawConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// serveOn runs an already configured server on a loopback listener.
func serveOn(t *testing.T, srv *Server) (*Server, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "Listen")
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv, ln.Addr().String()
}
