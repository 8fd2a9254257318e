package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassiveAddress(t *testing.T) {
	assert.Equal(t, "127,0,0,1,4,1", passiveAddress(net.IPv4(127, 0, 0, 1), 1025))
	assert.Equal(t, "10,1,2,3,255,255", passiveAddress(net.ParseIP("10.1.2.3"), 65535))
	assert.Equal(t, "0,0,0,0,0,21", passiveAddress(nil, 21))
	assert.Equal(t, "0,0,0,0,19,136", passiveAddress(net.ParseIP("::1"), 5000))
}

func TestDataChannelEstablishWithoutSetup(t *testing.T) {
	var d dataChannel
	assert.False(t, d.ready())
	_, _, err := d.establish(context.Background())
	assert.ErrorIs(t, err, ErrNoDataChannel)
	assert.NoError(t, d.close())
}

func TestDataChannelPassive(t *testing.T) {
	d := dataChannel{timeout: 5 * time.Second}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	peer := make(chan net.Conn, 1)
	go func() {
		c, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			peer <- c
		}
		close(peer)
	}()

	require.NoError(t, d.accept(context.Background(), ln))
	client := <-peer
	require.NotNil(t, client)
	defer client.Close()

	assert.True(t, d.isOpen())
	assert.ErrorIs(t, d.setActive("127.0.0.1:2000"), ErrDataChannelOpen)

	conn, reused, err := d.establish(context.Background())
	require.NoError(t, err)
	assert.True(t, reused)
	assert.NotNil(t, conn)

	// The listener is gone once the single peer has been accepted.
	_, err = net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	assert.Error(t, err)

	require.NoError(t, d.close())
	assert.False(t, d.isOpen())
	assert.NoError(t, d.close())

	// The peer sees end of stream.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := client.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.Error(t, err)
}

func TestDataChannelAcceptTimeout(t *testing.T) {
	d := dataChannel{timeout: 100 * time.Millisecond}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	start := time.Now()
	err = d.accept(context.Background(), ln)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, d.isOpen())
}

func TestDataChannelAcceptCanceled(t *testing.T) {
	d := dataChannel{timeout: time.Minute}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	assert.Error(t, d.accept(ctx, ln))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDataChannelActive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := dataChannel{timeout: 5 * time.Second}
	require.NoError(t, d.setActive(ln.Addr().String()))
	assert.True(t, d.ready())
	assert.False(t, d.isOpen())

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	conn, reused, err := d.establish(context.Background())
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotNil(t, conn)

	peer := <-accepted
	require.NotNil(t, peer)
	peer.Close()

	require.NoError(t, d.close())
	assert.False(t, d.ready())
}

func TestDataChannelActiveDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	d := dataChannel{timeout: time.Second}
	require.NoError(t, d.setActive(addr))
	_, _, err = d.establish(context.Background())
	assert.Error(t, err)
	// The pending address is consumed by the attempt.
	assert.False(t, d.ready())
}

func TestDataChannelTracking(t *testing.T) {
	tracked := map[net.Conn]bool{}
	d := dataChannel{
		timeout: 5 * time.Second,
		track: func(c net.Conn, add bool) bool {
			tracked[c] = add
			return true
		},
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		if c, err := net.Dial("tcp", ln.Addr().String()); err == nil {
			defer c.Close()
			time.Sleep(200 * time.Millisecond)
		}
	}()
	require.NoError(t, d.accept(context.Background(), ln))
	conn := d.conn
	assert.True(t, tracked[conn])

	require.NoError(t, d.close())
	assert.False(t, tracked[conn])
}

func TestListenPassiveRange(t *testing.T) {
	// A single-port range built from a port the OS reports free.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	srv := &Server{pasvMinPort: port, pasvMaxPort: port}
	ln, err := srv.listenPassive("127.0.0.1", 0)
	require.NoError(t, err)
	assert.Equal(t, port, ln.Addr().(*net.TCPAddr).Port)

	// The only port in the range is taken.
	_, err = srv.listenPassive("127.0.0.1", 0)
	assert.Error(t, err)
	ln.Close()

	// A hint overrides the range.
	ln, err = srv.listenPassive("127.0.0.1", port)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(port), portOf(ln))
	ln.Close()
}

func portOf(ln net.Listener) string {
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	return port
}

func TestAdvertisedIP(t *testing.T) {
	local := &net.TCPAddr{IP: net.IPv4(192, 168, 1, 5), Port: 21}

	srv := &Server{}
	assert.True(t, srv.advertisedIP(local).Equal(net.IPv4(192, 168, 1, 5)))

	srv = &Server{publicHost: "203.0.113.9"}
	assert.True(t, srv.advertisedIP(local).Equal(net.IPv4(203, 0, 113, 9)))

	srv = &Server{publicHost: "ftp.example.com", publicIP: net.IPv4(198, 51, 100, 1)}
	assert.True(t, srv.advertisedIP(local).Equal(net.IPv4(198, 51, 100, 1)))
}
