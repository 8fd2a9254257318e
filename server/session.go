package server

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/gonzalop/ftpd/config"
)

// loginState is the authentication progress of a session.
type loginState int

const (
	stateAwaitingUser loginState = iota
	stateAwaitingPass
	stateLoggedIn
)

func (l loginState) String() string {
	switch l {
	case stateAwaitingUser:
		return "awaiting_user"
	case stateAwaitingPass:
		return "awaiting_pass"
	case stateLoggedIn:
		return "logged_in"
	}
	return "unknown"
}

// session represents one client control connection.
//
// Commands are handled strictly one at a time: a command is read, run to
// completion (including any data transfer it starts) and answered before
// the next line is read. The session owns its data channel; nothing in it
// is shared with other sessions.
type session struct {
	server *Server
	conn   net.Conn
	reader *controlReader
	writer *bufio.Writer
	logger *zap.Logger

	// ctx is canceled when the session ends or the server shuts down.
	ctx    context.Context
	cancel context.CancelFunc

	// Session tracking
	sessionID string
	remoteIP  string

	// Login state
	state   loginState
	user    string
	cred    config.Credential
	isAdmin bool

	// cwd is the virtual working directory, always starting with "/".
	cwd          string
	transferType TransferType

	// Data connection state. portHint is the port named by the last PORT
	// command; the next PASV listens on it.
	data     dataChannel
	portHint int

	// lastCode is the most recent reply code sent.
	lastCode ReplyCode
	writeErr error
	quit     bool
}

// commandHandlers maps verbs to their handler functions.
var commandHandlers = map[Verb]func(*session, Command){
	// Access control
	VerbUSER: (*session).handleUSER,
	VerbPASS: (*session).handlePASS,
	VerbAUTH: (*session).handleAUTH,
	VerbQUIT: (*session).handleQUIT,

	// File Management
	VerbCWD:  (*session).handleCWD,
	VerbCDUP: (*session).handleCDUP,
	VerbPWD:  (*session).handlePWD,
	VerbMKD:  (*session).handleMKD,
	VerbRMD:  (*session).handleRMD,

	// Transfer Parameters
	VerbTYPE: (*session).handleTYPE,
	VerbPASV: (*session).handlePASV,
	VerbPORT: (*session).handlePORT,

	// File Transfer
	VerbRETR: (*session).handleRETR,
	VerbSTOR: (*session).handleSTOR,
	VerbLIST: (*session).handleLIST,

	// Information
	VerbSYST: (*session).handleSYST,
	VerbNOOP: (*session).handleNOOP,
}

// preLoginVerbs may be issued before the login completes. Everything else
// is answered with 530 and has no effect.
var preLoginVerbs = map[Verb]bool{
	VerbUnknown: true,
	VerbUSER:    true,
	VerbPASS:    true,
	VerbAUTH:    true,
	VerbQUIT:    true,
	VerbSYST:    true,
	VerbNOOP:    true,
	VerbTYPE:    true,
}

// generateSessionID generates a unique 8-character session ID.
func generateSessionID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// newSession creates a new session.
func newSession(server *Server, conn net.Conn) *session {
	sessionID := generateSessionID()
	remoteIP := remoteHost(conn)
	ctx, cancel := context.WithCancel(server.ctx)

	s := &session{
		server:       server,
		conn:         conn,
		reader:       newControlReader(conn),
		writer:       bufio.NewWriter(conn),
		ctx:          ctx,
		cancel:       cancel,
		sessionID:    sessionID,
		remoteIP:     remoteIP,
		cwd:          "/",
		transferType: TypeASCII,
		logger: server.logger.With(
			zap.String("session_id", sessionID),
			zap.String("remote_ip", remoteIP),
		),
	}
	s.data.timeout = server.passiveTimeout
	s.data.track = server.trackConnection
	return s
}

// serve runs the session until QUIT, end of stream, an idle timeout, a
// control write failure or server shutdown.
func (s *session) serve() {
	defer s.close()

	s.logger.Info("session_started")
	s.reply(CodeServiceReady, s.server.welcomeMessage)

	for !s.quit && s.writeErr == nil {
		if s.server.maxIdleTime > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
		}

		line, err := s.reader.readLine(MaxCommandLength)
		if err != nil {
			s.handleReadError(err)
			return
		}

		_ = s.conn.SetReadDeadline(time.Time{})
		s.handleCommand(line)
	}
}

func (s *session) handleReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, errLineTooLong):
		s.reply(CodeSyntaxError, "Command line too long.")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Info("idle timeout", zap.String("user", s.user))
		s.reply(CodeServiceNotAvailable, "Idle timeout, closing control connection.")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
	default:
		s.logger.Warn("read error", zap.String("user", s.user), zap.Error(err))
	}
}

// close releases the data channel and the control connection.
func (s *session) close() {
	s.cancel()
	if err := s.data.close(); err != nil {
		s.logger.Debug("data channel close", zap.Error(err))
	}
	_ = s.writer.Flush()
	s.conn.Close()

	s.logger.Info("session_closed", zap.String("user", s.user))
}

// handleCommand parses and dispatches one command line.
func (s *session) handleCommand(line string) {
	start := time.Now()

	cmd, err := ParseCommand(line)
	if err != nil {
		s.logger.Debug("command_rejected", zap.String("user", s.user), zap.Error(err))
		if s.gatedParseError(err) {
			s.reply(CodeNotLoggedIn, "Please log in first.")
			return
		}
		s.replyParseError(err)
		return
	}

	logArg := cmd.Arg
	if cmd.Verb == VerbPASS {
		logArg = "***"
	}
	s.logger.Debug("command_received",
		zap.String("user", s.user),
		zap.String("cmd", cmd.Name),
		zap.String("arg", logArg),
	)

	s.dispatch(cmd)

	if s.server.metrics != nil {
		name := cmd.Name
		if cmd.Verb == VerbUnknown {
			name = "UNKNOWN"
		}
		s.server.metrics.RecordCommand(name, !s.lastCode.Negative(), time.Since(start))
	}
}

// dispatch applies the login gate and runs the handler for cmd.
func (s *session) dispatch(cmd Command) {
	if s.state != stateLoggedIn && !preLoginVerbs[cmd.Verb] {
		s.reply(CodeNotLoggedIn, "Please log in first.")
		return
	}

	handler, ok := commandHandlers[cmd.Verb]
	if !ok {
		s.reply(CodeSyntaxError, "Unknown command.")
		return
	}
	handler(s, cmd)
}

// gatedParseError reports whether a malformed line names a verb that the
// login gate would refuse anyway.
func (s *session) gatedParseError(err error) bool {
	var pe *ParseError
	if s.state == stateLoggedIn || !errors.As(err, &pe) {
		return false
	}
	return !preLoginVerbs[verbNames[pe.Verb]]
}

func (s *session) replyParseError(err error) {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Verb != "" {
		s.reply(CodeSyntaxErrorArgs, "Syntax error in parameters or arguments: "+pe.Reason+".")
		return
	}
	s.reply(CodeSyntaxError, "Empty command.")
}

// replyPathError answers a failed path operation.
func (s *session) replyPathError(err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		s.reply(CodeFileUnavailable, "Permission denied.")
	case errors.Is(err, ErrNotFound):
		s.reply(CodeFileUnavailable, "No such file or directory.")
	default:
		s.logger.Warn("storage error", zap.String("user", s.user), zap.Error(err))
		s.reply(CodeLocalError, "Requested action aborted: local error in processing.")
	}
}

// reply sends a response to the client. After the first write failure the
// session stops reading commands.
func (s *session) reply(code ReplyCode, message string) {
	s.lastCode = code
	if s.writeErr != nil {
		return
	}
	if _, err := s.writer.Write(EncodeReply(code, message)); err != nil {
		s.writeErr = err
		return
	}
	if err := s.writer.Flush(); err != nil {
		s.writeErr = err
	}
}
