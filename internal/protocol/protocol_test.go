package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeDecode_AudioChunk(t *testing.T) {
	in := AudioChunk{Bytes: []byte{0x01, 0x02, 0xff}, Format: "opus/48000/1"}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := Decode(data)
	chunk, ok := out.(AudioChunk)
	if !ok {
		t.Fatalf("expected AudioChunk, got %T", out)
	}
	if !bytes.Equal(chunk.Bytes, in.Bytes) {
		t.Fatalf("audio bytes mismatch")
	}
	if chunk.Format != in.Format {
		t.Fatalf("format mismatch: %q", chunk.Format)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	msg := Decode([]byte(`{"type":"tool_call","name":"lookup"}`))
	u, ok := msg.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", msg)
	}
	if u.Type != "tool_call" {
		t.Fatalf("expected raw type preserved, got %q", u.Type)
	}
	if len(u.Raw) == 0 {
		t.Fatalf("expected raw frame preserved")
	}
}

func TestDecode_MalformedNeverFatal(t *testing.T) {
	for _, raw := range []string{"", "{", `{"no_type":1}`, `{"type":"audio_chunk","audio":"not base64!!"}`} {
		msg := Decode([]byte(raw))
		if _, ok := msg.(Unknown); !ok {
			t.Fatalf("expected Unknown for %q, got %T", raw, msg)
		}
	}
}

func TestEncodeDecode_Profile(t *testing.T) {
	in := UserProfile{Name: "Dana", Role: "Backend Engineer", Skills: []string{"go", "sql"}, Category: "technical"}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := Decode(data)
	p, ok := out.(UserProfile)
	if !ok {
		t.Fatalf("expected UserProfile, got %T", out)
	}
	if p.Name != "Dana" || p.Category != "technical" || len(p.Skills) != 2 {
		t.Fatalf("profile round-trip mismatch: %+v", p)
	}
}

func TestEncode_ControlMessages(t *testing.T) {
	for _, m := range []Message{Ping{}, Pong{}, Interruption{}, EndConversation{}, AgentAudioStart{}, AgentAudioEnd{}} {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("encode %v: %v", m.Kind(), err)
		}
		out := Decode(data)
		if out.Kind() != m.Kind() {
			t.Fatalf("round-trip kind mismatch: sent %v got %v", m.Kind(), out.Kind())
		}
	}
}
