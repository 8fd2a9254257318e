package server

import "io"

// asciiEncoder converts bare LF line endings to CRLF. It wraps the source
// of outgoing transfers when TYPE A is active and translation is enabled.
type asciiEncoder struct {
	r         io.Reader
	buf       []byte
	prevCR    bool
	pendingLF bool
}

func newASCIIEncoder(r io.Reader) *asciiEncoder {
	return &asciiEncoder{r: r}
}

func (e *asciiEncoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := 0
	if e.pendingLF {
		p[0] = '\n'
		n = 1
		e.pendingLF = false
		if len(p) == 1 {
			return n, nil
		}
	}

	// Every input byte expands to at most two output bytes, so reading half
	// the free space leaves room for all but one LF, which is carried over.
	want := max((len(p)-n+1)/2, 1)
	if cap(e.buf) < want {
		e.buf = make([]byte, want)
	}
	m, err := e.r.Read(e.buf[:want])

	for _, b := range e.buf[:m] {
		if b == '\n' && !e.prevCR {
			p[n] = '\r'
			n++
			if n == len(p) {
				e.pendingLF = true
				e.prevCR = false
				continue
			}
		}
		p[n] = b
		n++
		e.prevCR = b == '\r'
	}

	if err == io.EOF && (n > 0 || e.pendingLF) {
		return n, nil
	}
	return n, err
}

// asciiDecoder converts CRLF line endings to LF. It wraps the data
// connection of incoming transfers when TYPE A is active and translation is
// enabled. A CR not followed by LF is kept.
type asciiDecoder struct {
	r         io.Reader
	in        []byte
	out       []byte
	pending   []byte
	pendingCR bool
	err       error
}

func newASCIIDecoder(r io.Reader) *asciiDecoder {
	return &asciiDecoder{r: r}
}

func (d *asciiDecoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(d.pending) == 0 {
		if d.err != nil {
			if !d.pendingCR {
				return 0, d.err
			}
			d.pendingCR = false
			d.pending = append(d.out[:0], '\r')
			break
		}
		d.decode(len(p))
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *asciiDecoder) decode(size int) {
	if cap(d.in) < size {
		d.in = make([]byte, size)
		d.out = make([]byte, 0, size+1)
	}
	m, err := d.r.Read(d.in[:size])
	d.err = err

	out := d.out[:0]
	for _, b := range d.in[:m] {
		if d.pendingCR {
			d.pendingCR = false
			if b != '\n' {
				out = append(out, '\r')
			}
		}
		if b == '\r' {
			d.pendingCR = true
			continue
		}
		out = append(out, b)
	}
	d.out = out
	d.pending = out
}
