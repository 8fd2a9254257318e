package server

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/gonzalop/ftpd/internal/ratelimit"
)

// transferChunkSize is the largest single read from a transfer source.
const transferChunkSize = 8192

// copyChunks copies src to dst one chunk at a time until src reports end
// of stream. A read that returns no bytes and no error also ends the copy.
func copyChunks(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, transferChunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			written += int64(w)
			if werr != nil {
				return written, werr
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF || (rerr == nil && n == 0) {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// transportError marks a failure of the data connection itself, as opposed
// to the storage side of a transfer.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "data connection: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// transportConn tags every read and write error of a data stream with
// transportError, including bandwidth waits cut short by shutdown. io.EOF
// passes through untouched.
type transportConn struct {
	io.ReadWriter
}

func (c transportConn) Read(p []byte) (int, error) {
	n, err := c.ReadWriter.Read(p)
	if err != nil && err != io.EOF {
		err = &transportError{err: err}
	}
	return n, err
}

func (c transportConn) Write(p []byte) (int, error) {
	n, err := c.ReadWriter.Write(p)
	if err != nil {
		err = &transportError{err: err}
	}
	return n, err
}

type readWriter struct {
	io.Reader
	io.Writer
}

// throttle applies the server-wide bandwidth limit, if any, to conn.
func (s *session) throttle(conn io.ReadWriter) io.ReadWriter {
	if s.server.limiter == nil {
		return conn
	}
	return readWriter{
		Reader: ratelimit.NewReader(s.ctx, conn, s.server.limiter),
		Writer: ratelimit.NewWriter(s.ctx, conn, s.server.limiter),
	}
}

// translateASCII reports whether line endings are converted for the
// current transfer.
func (s *session) translateASCII() bool {
	return s.server.asciiTranslation && s.transferType == TypeASCII
}

// abortData drops the data channel of a transfer command that failed before
// any data moved.
func (s *session) abortData() {
	if err := s.data.close(); err != nil {
		s.logger.Debug("data channel close", zap.Error(err))
	}
}

// transfer runs fn over the data channel. It sends exactly one preliminary
// reply before fn and one completion reply after the channel is closed.
func (s *session) transfer(op, path string, fn func(conn io.ReadWriter) (int64, error)) {
	conn, reused, err := s.data.establish(s.ctx)
	if err != nil {
		s.logger.Warn("data connection failed",
			zap.String("user", s.user),
			zap.String("operation", op),
			zap.Error(err),
		)
		s.reply(CodeCantOpenData, "Can't open data connection.")
		return
	}
	if reused {
		s.reply(CodeDataAlreadyOpen, "Data connection already open; transfer starting.")
	} else {
		s.reply(CodeFileStatusOK, "Opening data connection.")
	}

	start := time.Now()
	n, err := fn(transportConn{ReadWriter: s.throttle(conn)})
	s.abortData()
	duration := time.Since(start)

	if err != nil {
		s.logger.Warn("transfer_failed",
			zap.String("user", s.user),
			zap.String("operation", op),
			zap.String("path", path),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
		var te *transportError
		if errors.As(err, &te) {
			s.reply(CodeTransferAborted, "Connection closed; transfer aborted.")
		} else {
			s.reply(CodeLocalError, "Requested action aborted: local error in processing.")
		}
		return
	}

	s.logger.Info("transfer_complete",
		zap.String("user", s.user),
		zap.String("operation", op),
		zap.String("path", path),
		zap.Int64("bytes", n),
		zap.Duration("duration", duration),
	)
	if s.server.metrics != nil {
		s.server.metrics.RecordTransfer(op, n, duration)
	}
	s.reply(CodeClosingData, "Transfer complete.")
}
