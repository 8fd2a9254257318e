package server

import (
	"bytes"
	"io"
	"net"
	"os"
	"path"
	"strconv"

	"go.uber.org/zap"
)

// handlePASV opens a passive listener, announces it with 227 and waits for
// the client to connect before the next command is read.
func (s *session) handlePASV(Command) {
	if s.data.isOpen() {
		s.reply(CodeCantOpenData, "Data connection already open.")
		return
	}
	s.data.activeAddr = ""

	var host string
	if local, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		host = local.IP.String()
	}
	hint := s.portHint
	s.portHint = 0

	ln, err := s.server.listenPassive(host, hint)
	if err != nil {
		s.logger.Warn("passive listen failed",
			zap.String("user", s.user),
			zap.Int("port_hint", hint),
			zap.Error(err),
		)
		s.reply(CodeCantOpenData, "Can't open passive connection.")
		return
	}

	port := ln.Addr().(*net.TCPAddr).Port
	ip := s.server.advertisedIP(s.conn.LocalAddr())
	s.reply(CodePassiveMode, "Entering Passive Mode ("+passiveAddress(ip, port)+").")

	if err := s.data.accept(s.ctx, ln); err != nil {
		s.logger.Warn("passive_accept_failed",
			zap.String("user", s.user),
			zap.Int("port", port),
			zap.Error(err),
		)
	}
}

// handlePORT records an active-mode target. The connection is made to the
// control connection's peer on the given port, whatever host the command
// names, so the server cannot be used to reach third parties.
func (s *session) handlePORT(cmd Command) {
	addr := net.JoinHostPort(s.remoteIP, strconv.Itoa(cmd.Port))
	if err := s.data.setActive(addr); err != nil {
		s.reply(CodeCantOpenData, "Data connection already open.")
		return
	}
	if peer := net.ParseIP(s.remoteIP); peer != nil && !cmd.Host.Equal(peer) {
		s.logger.Debug("PORT host differs from control peer",
			zap.String("user", s.user),
			zap.String("requested", cmd.Host.String()),
		)
	}
	s.portHint = cmd.Port
	s.reply(CodeOK, "PORT command successful.")
}

func (s *session) handleRETR(cmd Command) {
	if !s.data.ready() {
		s.reply(CodeCantOpenData, "No opened data connection.")
		return
	}

	target, err := s.server.resolver.Resolve(s.cwd, cmd.Path)
	var info os.FileInfo
	if err == nil {
		info, err = s.server.store.Stat(target)
		err = pathError(err)
	}
	if err == nil && !info.Mode().IsRegular() {
		err = ErrNotFound
	}
	if err == nil && s.isProtected(target) {
		err = ErrPermissionDenied
	}
	var file io.ReadCloser
	if err == nil {
		file, err = s.server.store.Open(target)
		err = pathError(err)
	}
	if err != nil {
		s.abortData()
		s.replyPathError(err)
		return
	}
	defer file.Close()

	virtual := s.server.resolver.Virtual(target)
	s.transfer("RETR", virtual, func(conn io.ReadWriter) (int64, error) {
		var src io.Reader = file
		if s.translateASCII() {
			src = newASCIIEncoder(file)
		}
		return copyChunks(conn, src)
	})
}

// handleSTOR creates or overwrites a file with the bytes the client sends.
// Paths containing ".." are refused outright. The file is only created once
// the data connection is up, so a failed connection leaves it untouched.
func (s *session) handleSTOR(cmd Command) {
	if !s.data.ready() {
		s.reply(CodeCantOpenData, "No opened data connection.")
		return
	}

	var err error
	if hasParentSegment(cmd.Path) || (!s.isAdmin && s.isProtectedName(path.Base(cmd.Path))) {
		err = ErrPermissionDenied
	}
	var target string
	if err == nil {
		target, err = s.server.resolver.ResolveCreate(s.cwd, cmd.Path)
	}
	if err == nil && s.isProtected(target) {
		err = ErrPermissionDenied
	}
	if err != nil {
		s.abortData()
		s.replyPathError(err)
		return
	}

	virtual := s.server.resolver.Virtual(target)
	s.transfer("STOR", virtual, func(conn io.ReadWriter) (int64, error) {
		file, err := s.server.store.Create(target)
		if err != nil {
			return 0, err
		}
		var src io.Reader = conn
		if s.translateASCII() {
			src = newASCIIDecoder(conn)
		}
		n, err := copyChunks(file, src)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		return n, err
	})
}

// handleLIST sends a directory listing, or a single line for a file. The
// path defaults to the working directory; a leading option such as "-la"
// is accepted and ignored.
func (s *session) handleLIST(cmd Command) {
	if !s.data.ready() {
		s.reply(CodeCantOpenData, "No opened data connection.")
		return
	}

	p := cmd.Path
	if p == "" {
		p = "."
	}
	target, err := s.server.resolver.Resolve(s.cwd, p)
	var info os.FileInfo
	if err == nil {
		info, err = s.server.store.Stat(target)
		err = pathError(err)
	}
	if err == nil && s.isProtected(target) {
		err = ErrPermissionDenied
	}
	if err != nil {
		s.abortData()
		s.replyPathError(err)
		return
	}

	virtual := s.server.resolver.Virtual(target)
	s.transfer("LIST", virtual, func(conn io.ReadWriter) (int64, error) {
		var buf bytes.Buffer
		if err := s.writeListing(&buf, target, info); err != nil {
			return 0, err
		}
		return copyChunks(conn, &buf)
	})
}
