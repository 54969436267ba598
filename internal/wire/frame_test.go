package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{Kind: KindHeartbeat},
		{Kind: KindListSessions},
		{Kind: KindUnwatchSession},
		{Kind: KindLogin, Login: &LoginPayload{Method: "plain", Credential: "alice", Cols: 80, Rows: 24, Title: "bash"}},
		{Kind: KindLogin, Login: &LoginPayload{Method: "plain", Credential: "bob"}},
		{Kind: KindTerminalOutput, TerminalOutput: []byte("hello\n")},
		{Kind: KindTerminalOutput, TerminalOutput: []byte{}},
		{Kind: KindResize, Resize: &ResizePayload{Cols: 100, Rows: 40}},
		{Kind: KindSessions, Sessions: []SessionInfo{
			{ID: "abc", DisplayName: "alice", Title: "bash", Cols: 80, Rows: 24, IdleSeconds: 3, WatcherCount: 1},
		}},
		{Kind: KindSessions, Sessions: nil},
		{Kind: KindWatchSession, WatchSession: "abc123"},
		{Kind: KindDisconnected, Disconnected: "streamer disconnected"},
		{Kind: KindError, Error: &ErrorPayload{Code: ErrCodeAuthFailed, Message: "bad token"}},
		{Kind: KindOauthCliRequest, OauthCliRequest: &OauthCliRequestPayload{Method: "recurse_center", URL: "https://example.com/authorize"}},
		{Kind: KindOauthCliResponse, OauthCliRespose: &OauthCliResponsePayload{Method: "recurse_center", Code: "abc"}},
	}

	for i, want := range cases {
		encoded, err := Encode(want)
		if err != nil {
			t.Fatalf("case %d: Encode: %v", i, err)
		}
		got, err := ReadFrame(bytes.NewReader(encoded), DefaultMaxFrameSize)
		if err != nil {
			t.Fatalf("case %d: ReadFrame: %v", i, err)
		}
		if !reflect.DeepEqual(normalizeSessions(want), normalizeSessions(got)) {
			t.Fatalf("case %d: round trip mismatch:\n want %#v\n got  %#v", i, want, got)
		}
	}
}

// normalizeSessions treats a nil and empty Sessions slice as equal, since
// the wire format cannot distinguish "zero sessions" from "no field".
func normalizeSessions(f Frame) Frame {
	if f.Kind == KindSessions && len(f.Sessions) == 0 {
		f.Sessions = nil
	}
	return f
}

func TestDecodeStreamAcrossChunkedReads(t *testing.T) {
	frames := []Frame{
		{Kind: KindHeartbeat},
		{Kind: KindTerminalOutput, TerminalOutput: []byte("hello\n")},
		{Kind: KindResize, Resize: &ResizePayload{Cols: 80, Rows: 24}},
	}

	var wire []byte
	for _, f := range frames {
		b, err := Encode(f)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		wire = append(wire, b...)
	}

	dec := NewStreamDecoder(DefaultMaxFrameSize)
	var got []Frame
	for i := 0; i < len(wire); i++ {
		dec.Feed(wire[i : i+1])
		more, err := dec.DecodeAll()
		if err != nil {
			t.Fatalf("byte %d: DecodeAll: %v", i, err)
		}
		got = append(got, more...)
	}

	if len(got) != len(frames) {
		t.Fatalf("expected %d frames, got %d", len(frames), len(got))
	}
	for i := range frames {
		if !reflect.DeepEqual(frames[i], got[i]) {
			t.Fatalf("frame %d mismatch:\n want %#v\n got  %#v", i, frames[i], got[i])
		}
	}
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	dec := NewStreamDecoder(16)
	b, err := Encode(Frame{Kind: KindTerminalOutput, TerminalOutput: bytes.Repeat([]byte{'x'}, 64)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec.Feed(b)
	_, _, err = dec.Decode()
	if err != ErrOversizedFrame {
		t.Fatalf("expected ErrOversizedFrame, got %v", err)
	}
}

func TestReadFrameOversized(t *testing.T) {
	b, err := Encode(Frame{Kind: KindTerminalOutput, TerminalOutput: bytes.Repeat([]byte{'x'}, 64)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(b), 16)
	if err != ErrOversizedFrame {
		t.Fatalf("expected ErrOversizedFrame, got %v", err)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	b, err := Encode(Frame{Kind: KindHeartbeat})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Corrupt the kind tag (bytes 4-7) to an unassigned value.
	b[7] = 0xFF
	_, err = ReadFrame(bytes.NewReader(b), DefaultMaxFrameSize)
	if err != ErrUnknownKind {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestLoginIsStreamer(t *testing.T) {
	streamer := &LoginPayload{Cols: 80, Rows: 24, Title: "bash"}
	if !streamer.IsStreamer() {
		t.Fatalf("expected streamer login to report IsStreamer")
	}
	watcher := &LoginPayload{}
	if watcher.IsStreamer() {
		t.Fatalf("expected watcher login to not report IsStreamer")
	}
}
