package server

import (
	"errors"
	"fmt"
	"os"
)

// Errors reported by the session core. Every one of them is converted to a
// reply at the command dispatch boundary; none of them ends a session.
var (
	// ErrPermissionDenied is returned when a path escapes the server root or
	// touches the protected file without admin rights.
	ErrPermissionDenied = fmt.Errorf("permission denied: %w", os.ErrPermission)

	// ErrNotFound is returned when a path does not exist in storage.
	ErrNotFound = fmt.Errorf("no such file or directory: %w", os.ErrNotExist)

	// ErrNoDataChannel is returned by transfer commands issued without a
	// prior PASV or PORT.
	ErrNoDataChannel = errors.New("no opened data connection")

	// ErrDataChannelOpen is returned when a data channel is requested while
	// one is already open.
	ErrDataChannelOpen = errors.New("data connection already open")

	// ErrUnknownUser is returned for a USER name that is not configured.
	ErrUnknownUser = errors.New("unknown user")

	// ErrWrongPassword is returned when PASS does not match.
	ErrWrongPassword = errors.New("wrong password")
)

// ErrServerClosed is returned by the Server's Serve and ListenAndServe
// methods after a call to Shutdown.
var ErrServerClosed = errors.New("ftp: Server closed")

// ParseError describes a command line that could not be decoded.
type ParseError struct {
	Verb   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Verb == "" {
		return e.Reason
	}
	return e.Verb + ": " + e.Reason
}

// pathError maps a storage error onto the resolver's error vocabulary.
func pathError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	}
	return err
}
