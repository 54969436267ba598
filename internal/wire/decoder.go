package wire

import "encoding/binary"

// StreamDecoder decodes a sequence of frames from an arbitrarily chunked
// byte stream. Callers Feed() bytes as they arrive (from a single read,
// or one at a time) and call Decode() to pop any frames that have become
// complete. It never allocates more than the declared length of the
// frame currently being assembled, and holds no more state between calls
// than the bytes not yet consumed into a complete frame.
type StreamDecoder struct {
	maxSize uint32
	buf     []byte
}

// NewStreamDecoder creates a decoder that rejects any frame whose
// declared length exceeds maxSize.
func NewStreamDecoder(maxSize uint32) *StreamDecoder {
	return &StreamDecoder{maxSize: maxSize}
}

// Feed appends newly received bytes to the decoder's internal buffer.
func (d *StreamDecoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Decode pops and returns the next complete frame, if one is available.
// ok is false (with a nil error) when more bytes are needed. An error is
// terminal: the connection must be closed without calling Decode again.
func (d *StreamDecoder) Decode() (frame Frame, ok bool, err error) {
	if len(d.buf) < lengthFieldSize {
		return Frame{}, false, nil
	}
	length := binary.BigEndian.Uint32(d.buf)
	if length > d.maxSize {
		return Frame{}, false, ErrOversizedFrame
	}
	if length < kindFieldSize {
		return Frame{}, false, ErrMalformed
	}

	total := lengthFieldSize + int(length)
	if len(d.buf) < total {
		return Frame{}, false, nil
	}

	body := d.buf[lengthFieldSize:total]
	kind := Kind(binary.BigEndian.Uint32(body))
	f, uerr := unmarshalPayload(kind, body[kindFieldSize:])
	if uerr != nil {
		return Frame{}, false, uerr
	}

	// Slide the remaining bytes down rather than re-slicing forever, so
	// a long-lived connection's buffer doesn't grow unbounded.
	remaining := len(d.buf) - total
	copy(d.buf, d.buf[total:])
	d.buf = d.buf[:remaining]

	return f, true, nil
}

// DecodeAll pops every complete frame currently buffered.
func (d *StreamDecoder) DecodeAll() ([]Frame, error) {
	var frames []Frame
	for {
		f, ok, err := d.Decode()
		if err != nil {
			return frames, err
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, f)
	}
}
