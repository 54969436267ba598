package wire

import (
	"encoding/binary"
	"fmt"
)

// bodyWriter accumulates a frame's payload body (everything after the
// 4-byte kind tag) using the fixed-width and length-prefixed encodings
// spec'd for the wire format.
type bodyWriter struct {
	buf []byte
}

func (w *bodyWriter) putUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *bodyWriter) putUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *bodyWriter) putString(s string) {
	w.putBytes([]byte(s))
}

func (w *bodyWriter) putBytes(b []byte) {
	w.putUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *bodyWriter) bytes() []byte {
	return w.buf
}

// bodyReader consumes a frame's payload body in the same order it was
// written. It never grows past the slice it was constructed with, so a
// caller that has already bounds-checked the declared frame length gets
// the same guarantee transitively.
type bodyReader struct {
	buf []byte
	pos int
}

func newBodyReader(b []byte) *bodyReader {
	return &bodyReader{buf: b}
}

var errMalformed = fmt.Errorf("wire: malformed payload")

func (r *bodyReader) getUint16() (uint16, error) {
	if len(r.buf)-r.pos < 2 {
		return 0, errMalformed
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *bodyReader) getUint32() (uint32, error) {
	if len(r.buf)-r.pos < 4 {
		return 0, errMalformed
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *bodyReader) getBytes() ([]byte, error) {
	n, err := r.getUint32()
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)-r.pos) < uint64(n) {
		return nil, errMalformed
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *bodyReader) getString() (string, error) {
	b, err := r.getBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// atEnd reports whether the entire body has been consumed. Callers use
// this to reject frames with trailing garbage after their known fields.
func (r *bodyReader) atEnd() bool {
	return r.pos == len(r.buf)
}
