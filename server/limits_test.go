package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxConnections(t *testing.T) {
	t.Parallel()
	mock := newMockMetricsCollector()
	_, addr, _ := startServer(t, WithMaxConnections(1), WithMetricsCollector(mock))

	// Limit to 1 connection total
	first := dialRaw(t, addr)
	first.login("alice", "secret")

	second := rawDial(t, addr)
	code, line := second.readReply()
	assert.Equal(t, 421, code, line)
	_, err := second.r.ReadByte()
	assert.Error(t, err)

	_, _, connections, _ := mock.snapshot()
	assert.Equal(t, 1, connections["global_limit_reached"])

	// The slot is released when the first session ends.
	first.expect(221, "QUIT")
	require.Eventually(t, func() bool {
		c := rawDial(t, addr)
		code, _ := c.readReply()
		c.conn.Close()
		return code == 220
	}, 5*time.Second, 50*time.Millisecond)
}
