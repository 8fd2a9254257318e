package server

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Telnet command bytes that may appear on the control connection (RFC 854).
const (
	telnetIAC  = 0xFF
	telnetWILL = 0xFB
	telnetWONT = 0xFC
	telnetDO   = 0xFD
	telnetDONT = 0xFE
)

// MaxCommandLength is the maximum length of a command line.
const MaxCommandLength = 4096

var errLineTooLong = errors.New("command line too long")

// controlReader splits the control stream into command lines and drops
// Telnet IAC sequences on the way. An escaped IAC (0xFF 0xFF) is kept as a
// single data byte.
type controlReader struct {
	r    *bufio.Reader
	line []byte
}

func newControlReader(r io.Reader) *controlReader {
	return &controlReader{r: bufio.NewReader(r)}
}

// readLine returns the next line without its CRLF or LF terminator. Bytes
// left without a terminator when the stream ends are discarded along with
// the error.
func (c *controlReader) readLine(maxLen int) (string, error) {
	c.line = c.line[:0]
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return "", err
		}

		if b == telnetIAC {
			keep, err := c.skipTelnetCommand()
			if err != nil {
				return "", err
			}
			if !keep {
				continue
			}
		}

		if b == '\n' {
			return strings.TrimSuffix(string(c.line), "\r"), nil
		}
		if len(c.line) >= maxLen {
			return "", errLineTooLong
		}
		c.line = append(c.line, b)
	}
}

// skipTelnetCommand consumes the remainder of an IAC sequence. keep reports
// an escaped 0xFF data byte.
func (c *controlReader) skipTelnetCommand() (keep bool, err error) {
	cmd, err := c.r.ReadByte()
	if err != nil {
		return false, err
	}
	switch cmd {
	case telnetIAC:
		return true, nil
	case telnetWILL, telnetWONT, telnetDO, telnetDONT:
		// IAC <cmd> <option>
		_, err = c.r.ReadByte()
	}
	return false, err
}
