package server

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// quotePath quotes p for a 257 reply, doubling embedded quotes (RFC 959
// appendix II).
func quotePath(p string) string {
	return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
}

func (s *session) handlePWD(Command) {
	if s.cwd == "" {
		s.reply(CodeFileUnavailable, "Working directory unavailable.")
		return
	}
	s.reply(CodePathCreated, quotePath(s.cwd))
}

func (s *session) handleCWD(cmd Command) {
	target, err := s.resolveDir(cmd.Path)
	if err != nil {
		s.reply(CodeFileUnavailable, "No such file or directory.")
		return
	}
	s.cwd = s.server.resolver.Virtual(target)
	s.reply(CodeFileActionOK, "Directory successfully changed.")
}

func (s *session) handleCDUP(Command) {
	s.cwd = virtualParent(s.cwd)
	s.reply(CodeFileActionOK, "Directory successfully changed.")
}

func (s *session) handleMKD(cmd Command) {
	target, err := s.server.resolver.ResolveCreate(s.cwd, cmd.Path)
	if err == nil && s.isProtected(target) {
		err = ErrPermissionDenied
	}
	if err == nil {
		err = s.server.store.Mkdir(target)
	}
	if err != nil {
		s.logger.Debug("mkdir failed", zap.String("user", s.user), zap.String("path", cmd.Path), zap.Error(err))
		s.reply(CodeFileUnavailable, "Unable to create folder.")
		return
	}

	virtual := s.server.resolver.Virtual(target)
	s.logger.Info("directory_created", zap.String("user", s.user), zap.String("path", virtual))
	s.reply(CodePathCreated, quotePath(virtual)+" created.")
}

// handleRMD removes a directory and everything below it. The server root
// cannot be removed.
func (s *session) handleRMD(cmd Command) {
	target, err := s.resolveDir(cmd.Path)
	if err == nil && (target == s.server.resolver.Root() || s.isProtected(target)) {
		err = ErrPermissionDenied
	}
	if err == nil {
		err = s.server.store.RemoveAll(target)
	}
	if err != nil {
		s.logger.Debug("rmd failed", zap.String("user", s.user), zap.String("path", cmd.Path), zap.Error(err))
		s.reply(CodeFileUnavailable, "Couldn't remove folder.")
		return
	}

	s.logger.Info("directory_removed", zap.String("user", s.user), zap.String("path", s.server.resolver.Virtual(target)))
	s.reply(CodeFileActionOK, "Directory removed.")
}

// resolveDir resolves p and requires a directory.
func (s *session) resolveDir(p string) (string, error) {
	target, err := s.server.resolver.Resolve(s.cwd, p)
	if err != nil {
		return "", err
	}
	info, err := s.server.store.Stat(target)
	if err != nil {
		return "", pathError(err)
	}
	if !info.IsDir() {
		return "", ErrNotFound
	}
	return target, nil
}

// isProtected reports whether target names the protected file and the
// session lacks admin rights.
func (s *session) isProtected(target string) bool {
	return !s.isAdmin && s.isProtectedName(filepath.Base(target))
}

func (s *session) isProtectedName(name string) bool {
	return s.server.protectedFile != "" && name == s.server.protectedFile
}
