// Package sse frames a server-sent-event byte stream into (event, data)
// pairs.
//
// The chat backend does not terminate frames with a blank line. Each data
// line is dispatched on its own, tagged with the most recent event name,
// which stays in effect until the next event line.
package sse

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
)

// ErrStop may be returned by a handler to end decoding without an error.
var ErrStop = errors.New("sse: stop")

// Frame is one dispatched data line.
type Frame struct {
	Event string
	Data  string
}

// Decoder buffers partial lines across arbitrary chunk boundaries.
type Decoder struct {
	handler func(Frame) error
	buf     []byte
	event   string
	err     error
}

func NewDecoder(handler func(Frame) error) *Decoder {
	return &Decoder{handler: handler}
}

// Write feeds a chunk. Complete lines are processed immediately, the tail is
// kept until its newline arrives. Once the handler has failed every later
// Write returns that error.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.buf = append(d.buf, p...)

	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		if err := d.processLine(strings.TrimSuffix(line, "\r")); err != nil {
			d.err = err
			d.buf = nil
			return len(p), err
		}
	}

	// Reclaim the consumed prefix so long streams do not pin memory.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return len(p), nil
}

// Pending reports the bytes of an unterminated line still buffered.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Event returns the event name currently in effect.
func (d *Decoder) Event() string {
	return d.event
}

func (d *Decoder) processLine(line string) error {
	switch {
	case line == "":
		return nil
	case strings.HasPrefix(line, ":"):
		return nil
	case strings.HasPrefix(line, "event:"):
		d.event = strings.TrimSpace(fieldValue(line, "event:"))
		return nil
	case strings.HasPrefix(line, "data:"):
		if d.handler == nil {
			return nil
		}
		return d.handler(Frame{Event: d.event, Data: fieldValue(line, "data:")})
	default:
		return nil
	}
}

// fieldValue strips the field name and exactly one following space; any
// further whitespace belongs to the payload.
func fieldValue(line, field string) string {
	v := line[len(field):]
	return strings.TrimPrefix(v, " ")
}

// Decode pumps r through a Decoder until EOF, a handler error, or ctx is
// done. ErrStop from the handler ends decoding cleanly. A trailing line
// without newline at EOF is discarded.
func Decode(ctx context.Context, r io.Reader, handler func(Frame) error) error {
	dec := NewDecoder(handler)
	chunk := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(chunk)
		if n > 0 {
			if _, err := dec.Write(chunk[:n]); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return readErr
		}
	}
}
