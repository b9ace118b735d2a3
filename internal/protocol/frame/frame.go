// Package frame turns a byte stream into line-delimited JSON objects.
package frame

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrMalformedLine   = errors.New("frame: malformed line")
	ErrLineTooLong     = errors.New("frame: line too long")
	ErrEmbeddedNewline = errors.New("frame: payload contains newline")
	ErrUnencodable     = errors.New("frame: value not encodable")
)

// Limits constrains per-line memory use in both directions.
type Limits struct {
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxLineBytes: 8 * 1024 * 1024}
}

func (l Limits) withDefaults() Limits {
	if l.MaxLineBytes <= 0 {
		l.MaxLineBytes = DefaultLimits().MaxLineBytes
	}
	return l
}

// LineError reports one undecodable line. The reader stays usable.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("frame: line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// IsLineError reports whether err is confined to a single line.
func IsLineError(err error) bool {
	var lerr *LineError
	return errors.As(err, &lerr)
}

// IsRejected reports whether a write error refused one value without
// touching the stream. The writer stays usable.
func IsRejected(err error) bool {
	return errors.Is(err, ErrLineTooLong) ||
		errors.Is(err, ErrEmbeddedNewline) ||
		errors.Is(err, ErrUnencodable)
}

// Reader yields one decoded JSON value per newline-terminated line, in
// arrival order. Blank lines are skipped.
type Reader struct {
	r      *bufio.Reader
	limits Limits
	line   int
}

func NewReader(r io.Reader, limits Limits) *Reader {
	return &Reader{r: bufio.NewReader(r), limits: limits.withDefaults()}
}

// ReadObject returns the next value. A *LineError leaves the stream positioned
// at the following line; any other error is terminal.
func (r *Reader) ReadObject() (any, error) {
	for {
		raw, err := r.readLine()
		if err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, &LineError{Line: r.line, Err: fmt.Errorf("%w: %v", ErrMalformedLine, err)}
		}
		return v, nil
	}
}

func (r *Reader) readLine() ([]byte, error) {
	var (
		buf      []byte
		overflow bool
	)
	for {
		chunk, err := r.r.ReadSlice('\n')
		if !overflow {
			if len(buf)+len(chunk) > r.limits.MaxLineBytes+1 {
				overflow = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		switch {
		case err == nil:
			r.line++
			if overflow {
				return nil, &LineError{Line: r.line, Err: ErrLineTooLong}
			}
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0 && !overflow:
			// final line without terminator
			r.line++
			return buf, nil
		default:
			return nil, err
		}
	}
}

// Writer serializes values one per line. Concurrent callers are serialized,
// so lines leave in call order and never interleave.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	limits Limits
}

func NewWriter(w io.Writer, limits Limits) *Writer {
	return &Writer{w: w, limits: limits.withDefaults()}
}

// WriteObject returns once the underlying write has completed or failed.
// Values refused before writing report IsRejected.
func (w *Writer) WriteObject(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnencodable, err)
	}
	if bytes.IndexByte(payload, '\n') >= 0 {
		return ErrEmbeddedNewline
	}
	if len(payload) > w.limits.MaxLineBytes {
		return ErrLineTooLong
	}
	payload = append(payload, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = w.w.Write(payload)
	return err
}

// Channel pairs a Reader and a Writer over one duplex stream.
type Channel struct {
	*Reader
	*Writer
}

func NewChannel(rw io.ReadWriter, limits Limits) *Channel {
	return &Channel{
		Reader: NewReader(rw, limits),
		Writer: NewWriter(rw, limits),
	}
}
