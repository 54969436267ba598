package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize is the default cap on a declared frame length
// (kind tag + payload), matching spec.md's 16 MiB default.
const DefaultMaxFrameSize = 16 * 1024 * 1024

// lengthFieldSize and kindFieldSize are the two fixed-width headers that
// precede every frame's payload on the wire.
const (
	lengthFieldSize = 4
	kindFieldSize   = 4
)

// ErrOversizedFrame is returned when a declared frame length exceeds the
// configured cap. The connection must be closed; see spec.md §7.
var ErrOversizedFrame = errors.New("wire: oversized frame")

// ErrUnknownKind is returned when a frame's kind tag has no known payload
// shape.
var ErrUnknownKind = errors.New("wire: unknown frame kind")

// ErrMalformed is returned when a frame's payload does not parse
// according to its kind's expected shape.
var ErrMalformed = errors.New("wire: malformed frame")

// Frame is one decoded protocol message: a kind tag and a typed payload.
// Exactly one of the payload fields is populated, selected by Kind.
type Frame struct {
	Kind Kind

	Login           *LoginPayload
	TerminalOutput  []byte
	Resize          *ResizePayload
	Sessions        []SessionInfo
	WatchSession    string
	Disconnected    string
	Error           *ErrorPayload
	OauthCliRequest *OauthCliRequestPayload
	OauthCliRespose *OauthCliResponsePayload
	// Heartbeat, ListSessions, and UnwatchSession carry no payload.
}

// Encode serializes a frame to its wire representation: a 4-byte
// big-endian length (covering the kind tag and payload body only), the
// 4-byte big-endian kind tag, then the payload body.
func Encode(f Frame) ([]byte, error) {
	body, err := marshalPayload(f)
	if err != nil {
		return nil, err
	}

	total := make([]byte, lengthFieldSize+kindFieldSize+len(body))
	binary.BigEndian.PutUint32(total, uint32(kindFieldSize+len(body)))
	binary.BigEndian.PutUint32(total[lengthFieldSize:], uint32(f.Kind))
	copy(total[lengthFieldSize+kindFieldSize:], body)
	return total, nil
}

func marshalPayload(f Frame) ([]byte, error) {
	w := &bodyWriter{}
	switch f.Kind {
	case KindLogin:
		if f.Login == nil {
			return nil, fmt.Errorf("wire: Login frame missing payload")
		}
		w.putString(f.Login.Method)
		w.putString(f.Login.Credential)
		w.putUint16(f.Login.Cols)
		w.putUint16(f.Login.Rows)
		w.putString(f.Login.Title)
	case KindHeartbeat, KindListSessions, KindUnwatchSession:
		// no payload
	case KindTerminalOutput:
		w.putBytes(f.TerminalOutput)
	case KindResize:
		if f.Resize == nil {
			return nil, fmt.Errorf("wire: Resize frame missing payload")
		}
		w.putUint16(f.Resize.Cols)
		w.putUint16(f.Resize.Rows)
	case KindSessions:
		w.putUint32(uint32(len(f.Sessions)))
		for _, s := range f.Sessions {
			w.putString(s.ID)
			w.putString(s.DisplayName)
			w.putString(s.Title)
			w.putUint16(s.Cols)
			w.putUint16(s.Rows)
			w.putUint32(s.IdleSeconds)
			w.putUint32(s.WatcherCount)
		}
	case KindWatchSession:
		w.putString(f.WatchSession)
	case KindDisconnected:
		w.putString(f.Disconnected)
	case KindError:
		if f.Error == nil {
			return nil, fmt.Errorf("wire: Error frame missing payload")
		}
		w.putUint32(f.Error.Code)
		w.putString(f.Error.Message)
	case KindOauthCliRequest:
		if f.OauthCliRequest == nil {
			return nil, fmt.Errorf("wire: OauthCliRequest frame missing payload")
		}
		w.putString(f.OauthCliRequest.Method)
		w.putString(f.OauthCliRequest.URL)
	case KindOauthCliResponse:
		if f.OauthCliRespose == nil {
			return nil, fmt.Errorf("wire: OauthCliResponse frame missing payload")
		}
		w.putString(f.OauthCliRespose.Method)
		w.putString(f.OauthCliRespose.Code)
	default:
		return nil, ErrUnknownKind
	}
	return w.bytes(), nil
}

func unmarshalPayload(kind Kind, body []byte) (Frame, error) {
	f := Frame{Kind: kind}
	r := newBodyReader(body)

	var err error
	switch kind {
	case KindLogin:
		p := &LoginPayload{}
		if p.Method, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		if p.Credential, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		if p.Cols, err = r.getUint16(); err != nil {
			return f, ErrMalformed
		}
		if p.Rows, err = r.getUint16(); err != nil {
			return f, ErrMalformed
		}
		if p.Title, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		f.Login = p
	case KindHeartbeat, KindListSessions, KindUnwatchSession:
		// no payload
	case KindTerminalOutput:
		b, gerr := r.getBytes()
		if gerr != nil {
			return f, ErrMalformed
		}
		f.TerminalOutput = append([]byte{}, b...)
	case KindResize:
		p := &ResizePayload{}
		if p.Cols, err = r.getUint16(); err != nil {
			return f, ErrMalformed
		}
		if p.Rows, err = r.getUint16(); err != nil {
			return f, ErrMalformed
		}
		f.Resize = p
	case KindSessions:
		count, cerr := r.getUint32()
		if cerr != nil {
			return f, ErrMalformed
		}
		sessions := make([]SessionInfo, 0, count)
		for i := uint32(0); i < count; i++ {
			var s SessionInfo
			if s.ID, err = r.getString(); err != nil {
				return f, ErrMalformed
			}
			if s.DisplayName, err = r.getString(); err != nil {
				return f, ErrMalformed
			}
			if s.Title, err = r.getString(); err != nil {
				return f, ErrMalformed
			}
			if s.Cols, err = r.getUint16(); err != nil {
				return f, ErrMalformed
			}
			if s.Rows, err = r.getUint16(); err != nil {
				return f, ErrMalformed
			}
			if s.IdleSeconds, err = r.getUint32(); err != nil {
				return f, ErrMalformed
			}
			if s.WatcherCount, err = r.getUint32(); err != nil {
				return f, ErrMalformed
			}
			sessions = append(sessions, s)
		}
		f.Sessions = sessions
	case KindWatchSession:
		if f.WatchSession, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
	case KindDisconnected:
		if f.Disconnected, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
	case KindError:
		p := &ErrorPayload{}
		if p.Code, err = r.getUint32(); err != nil {
			return f, ErrMalformed
		}
		if p.Message, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		f.Error = p
	case KindOauthCliRequest:
		p := &OauthCliRequestPayload{}
		if p.Method, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		if p.URL, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		f.OauthCliRequest = p
	case KindOauthCliResponse:
		p := &OauthCliResponsePayload{}
		if p.Method, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		if p.Code, err = r.getString(); err != nil {
			return f, ErrMalformed
		}
		f.OauthCliRespose = p
	default:
		return f, ErrUnknownKind
	}

	if !r.atEnd() {
		return f, ErrMalformed
	}
	return f, nil
}

// ReadFrame blocks until one complete frame has arrived on r, or returns
// an error. maxSize caps the declared length (kind tag + payload); a
// larger declared length fails fast with ErrOversizedFrame without
// reading the oversized body.
func ReadFrame(r io.Reader, maxSize uint32) (Frame, error) {
	var lenBuf [lengthFieldSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxSize {
		return Frame{}, ErrOversizedFrame
	}
	if length < kindFieldSize {
		return Frame{}, ErrMalformed
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	kind := Kind(binary.BigEndian.Uint32(body))
	return unmarshalPayload(kind, body[kindFieldSize:])
}

// WriteFrame encodes f and writes it to w in a single call.
func WriteFrame(w io.Writer, f Frame) error {
	b, err := Encode(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
