package server

import (
	"strings"

	"go.uber.org/zap"

	"github.com/gonzalop/ftpd/config"
)

// handleUSER starts a login. It always discards any earlier login, even a
// completed one, except when the name is empty.
func (s *session) handleUSER(cmd Command) {
	name := strings.TrimSpace(cmd.Arg)
	if name == "" {
		s.reply(CodeSyntaxErrorArgs, "Invalid username.")
		return
	}

	s.resetLogin()

	cred, isAdmin, ok := s.server.config.Lookup(name)
	if !ok {
		s.logger.Warn("authentication_failed",
			zap.String("user", name),
			zap.String("reason", ErrUnknownUser.Error()),
		)
		s.recordAuthentication(false, name)
		s.reply(CodeNotLoggedIn, "Unknown user.")
		return
	}

	s.user, s.cred, s.isAdmin = name, cred, isAdmin
	if cred.RequiresPassword() {
		s.state = stateAwaitingPass
		s.reply(CodeNeedPassword, "User name okay, need password.")
		return
	}
	s.login()
}

func (s *session) handlePASS(cmd Command) {
	switch s.state {
	case stateLoggedIn:
		s.reply(CodeSuperfluous, "Already logged in.")
		return
	case stateAwaitingUser:
		s.reply(CodeBadSequence, "Login with USER first.")
		return
	}

	if !s.cred.Verify(cmd.Arg) {
		s.logger.Warn("authentication_failed",
			zap.String("user", s.user),
			zap.String("reason", ErrWrongPassword.Error()),
		)
		s.recordAuthentication(false, s.user)
		s.resetLogin()
		s.reply(CodeNotLoggedIn, "Login incorrect.")
		return
	}
	s.login()
}

func (s *session) login() {
	s.state = stateLoggedIn
	s.logger.Info("authentication_success",
		zap.String("user", s.user),
		zap.Bool("admin", s.isAdmin),
	)
	s.recordAuthentication(true, s.user)
	s.reply(CodeLoggedIn, "User logged in, proceed.")
}

func (s *session) resetLogin() {
	s.state = stateAwaitingUser
	s.user = ""
	s.cred = config.Credential{}
	s.isAdmin = false
}

func (s *session) recordAuthentication(success bool, user string) {
	if s.server.metrics != nil {
		s.server.metrics.RecordAuthentication(success, user)
	}
}

// handleAUTH refuses every security mechanism; the control and data
// connections are plain text only.
func (s *session) handleAUTH(Command) {
	s.reply(CodeNotImplemented, "AUTH not implemented.")
}

// handleQUIT ends the session. An open data channel is closed first.
func (s *session) handleQUIT(Command) {
	if err := s.data.close(); err != nil {
		s.logger.Debug("data channel close", zap.Error(err))
	}
	s.reply(CodeClosing, "Service closing control connection.")
	s.quit = true
}
