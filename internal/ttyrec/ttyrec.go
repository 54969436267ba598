// Package ttyrec implements the industry-standard ttyrec recording
// format: a sequence of {sec, usec, len, bytes} frames, little-endian,
// bit-exact with other ttyrec tools (spec.md §6). It is deliberately
// dumb: a frame carries raw PTY bytes and a wall-clock timestamp, with
// no terminal emulation of its own.
package ttyrec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Frame is one recorded chunk of PTY output and the moment it was
// captured.
type Frame struct {
	Time time.Time
	Data []byte
}

// maxFrameBytes guards against a corrupt or hostile recording claiming
// an absurd frame length.
const maxFrameBytes = 64 * 1024 * 1024

// Writer appends ttyrec frames to an underlying io.Writer.
type Writer struct {
	w   *bufio.Writer
	now func() time.Time
}

// NewWriter wraps w. Every call to WriteFrame stamps the frame with the
// current time.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), now: time.Now}
}

// WriteFrame appends one frame, timestamped now.
func (rw *Writer) WriteFrame(data []byte) error {
	return rw.writeFrameAt(rw.now(), data)
}

func (rw *Writer) writeFrameAt(t time.Time, data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(t.Unix()))
	binary.LittleEndian.PutUint32(header[4:8], uint32(t.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(data)))
	if _, err := rw.w.Write(header[:]); err != nil {
		return fmt.Errorf("ttyrec: write frame header: %w", err)
	}
	if _, err := rw.w.Write(data); err != nil {
		return fmt.Errorf("ttyrec: write frame body: %w", err)
	}
	return nil
}

// Flush flushes any buffered output to the underlying writer.
func (rw *Writer) Flush() error {
	return rw.w.Flush()
}

// Reader reads ttyrec frames from an underlying io.Reader.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadFrame reads the next frame, or io.EOF at a clean end of stream.
func (rr *Reader) ReadFrame() (Frame, error) {
	var header [12]byte
	if _, err := io.ReadFull(rr.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, fmt.Errorf("ttyrec: truncated frame header: %w", err)
		}
		return Frame{}, err
	}

	sec := binary.LittleEndian.Uint32(header[0:4])
	usec := binary.LittleEndian.Uint32(header[4:8])
	length := binary.LittleEndian.Uint32(header[8:12])
	if length > maxFrameBytes {
		return Frame{}, fmt.Errorf("ttyrec: frame length %d exceeds cap", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(rr.r, data); err != nil {
		return Frame{}, fmt.Errorf("ttyrec: truncated frame body: %w", err)
	}

	return Frame{
		Time: time.Unix(int64(sec), int64(usec)*1000),
		Data: data,
	}, nil
}
