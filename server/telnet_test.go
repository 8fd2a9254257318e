package server

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestControlReaderTelnet(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{
			name:     "Normal command",
			input:    []byte("USER anonymous\r\n"),
			expected: "USER anonymous",
		},
		{
			name:     "Bare LF",
			input:    []byte("NOOP\n"),
			expected: "NOOP",
		},
		{
			name:     "IAC WILL",
			input:    []byte{telnetIAC, telnetWILL, 0x01, 'A', 'B', 'C', '\n'},
			expected: "ABC",
		},
		{
			name:     "IAC WONT",
			input:    []byte{telnetIAC, telnetWONT, 0x02, 'D', 'E', 'F', '\n'},
			expected: "DEF",
		},
		{
			name:     "IAC DO",
			input:    []byte{telnetIAC, telnetDO, 0x03, 'G', 'H', 'I', '\n'},
			expected: "GHI",
		},
		{
			name:     "IAC DONT",
			input:    []byte{telnetIAC, telnetDONT, 0x04, 'J', 'K', 'L', '\n'},
			expected: "JKL",
		},
		{
			name:     "IAC Escaping",
			input:    []byte{'X', telnetIAC, telnetIAC, 'Y', '\n'},
			expected: "X\xffY",
		},
		{
			name:     "Unknown command (2 byte)",
			input:    []byte{telnetIAC, 0xF0, 'A', '\r', '\n'},
			expected: "A",
		},
		{
			name:     "Interrupt before command",
			input:    []byte{telnetIAC, 0xF4, telnetIAC, 0xF2, 'Q', 'U', 'I', 'T', '\r', '\n'},
			expected: "QUIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newControlReader(bytes.NewReader(tt.input))
			line, err := r.readLine(MaxCommandLength)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if line != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, line)
			}
		})
	}
}

func TestControlReaderMultipleLines(t *testing.T) {
	r := newControlReader(strings.NewReader("USER a\r\nPASS b\r\nPARTIAL"))

	for _, want := range []string{"USER a", "PASS b"} {
		line, err := r.readLine(MaxCommandLength)
		if err != nil {
			t.Fatalf("readLine: %v", err)
		}
		if line != want {
			t.Errorf("expected %q, got %q", want, line)
		}
	}

	// An unterminated tail is not a command.
	if _, err := r.readLine(MaxCommandLength); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestControlReaderTooLong(t *testing.T) {
	input := strings.Repeat("A", 20) + "\r\n"
	r := newControlReader(strings.NewReader(input))
	if _, err := r.readLine(10); !errors.Is(err, errLineTooLong) {
		t.Errorf("expected errLineTooLong, got %v", err)
	}

	// The CR counts towards the limit, the LF does not.
	r = newControlReader(strings.NewReader("012345678\r\n"))
	line, err := r.readLine(10)
	if err != nil || line != "012345678" {
		t.Errorf("line at the limit: got %q, %v", line, err)
	}
}
