// Package ratelimit throttles data-channel streams to a byte rate.
//
// A single Limiter may be shared by several streams, in which case the
// limit applies to their combined throughput.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket measured in bytes.
type Limiter struct {
	l *rate.Limiter
}

// New returns a limiter allowing bytesPerSecond with a one second burst.
// It returns nil when bytesPerSecond is not positive, which disables
// limiting.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))}
}

// WaitN blocks until n bytes may pass. Requests larger than the burst are
// split.
func (rl *Limiter) WaitN(ctx context.Context, n int) error {
	if rl == nil {
		return nil
	}
	burst := rl.l.Burst()
	for n > 0 {
		take := min(n, burst)
		if err := rl.l.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader returns r throttled by limiter. A nil limiter returns r
// unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *Limiter
}

// NewWriter returns w throttled by limiter. A nil limiter returns w
// unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	if err := w.limiter.WaitN(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}
