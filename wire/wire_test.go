package wire

import (
	"encoding/json"
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	t.Parallel()

	c := &JSONCodec{}
	frame, err := NewEventFrame(map[string]string{"type": "workflow_run_completed"})
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}
	frame.ID = "f-1"

	data, err := c.Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != "f-1" || got.Type != FrameEvent {
		t.Errorf("decoded frame = %+v", got)
	}

	var payload map[string]string
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["type"] != "workflow_run_completed" {
		t.Errorf("payload type = %q", payload["type"])
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	t.Parallel()

	c := &MsgpackCodec{}
	frame := NewErrorFrame("f-9", ErrCodeForbidden, "missing subscribe scope")

	data, err := c.Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != FrameErr || got.CorrelID != "f-9" {
		t.Errorf("decoded frame = %+v", got)
	}
	if got.Error == nil || got.Error.Code != ErrCodeForbidden {
		t.Errorf("error detail = %+v", got.Error)
	}
}

func TestGetCodecNegotiation(t *testing.T) {
	t.Parallel()

	if name := GetCodec(CodecNameMsgpack).Name(); name != CodecNameMsgpack {
		t.Errorf("GetCodec(msgpack).Name() = %q", name)
	}
	if name := GetCodec("").Name(); name != CodecNameJSON {
		t.Errorf("GetCodec(\"\").Name() = %q, want json default", name)
	}
	if name := GetCodec("protobuf").Name(); name != CodecNameJSON {
		t.Errorf("GetCodec(unknown).Name() = %q, want json fallback", name)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := (&JSONCodec{}).Decode([]byte("{not json")); err == nil {
		t.Error("JSON Decode(garbage) = nil error")
	}
	if _, err := (&MsgpackCodec{}).Decode([]byte{0xc1}); err == nil {
		t.Error("msgpack Decode(garbage) = nil error")
	}
}
