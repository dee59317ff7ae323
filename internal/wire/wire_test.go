package wire

import (
	"encoding/json"
	"testing"
)

func TestEventClassification(t *testing.T) {
	var reply Event
	if err := json.Unmarshal([]byte(`{"request_id":"r1","result":{"status":"ok"}}`), &reply); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reply.IsReply() || reply.IsCall() {
		t.Fatalf("expected reply classification, got %+v", reply)
	}

	var call Event
	if err := json.Unmarshal([]byte(`{"call_id":"c1","tool":"echo","input":{"message":"hi"}}`), &call); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !call.IsCall() || call.IsReply() {
		t.Fatalf("expected call classification, got %+v", call)
	}
	if call.Tool != "echo" || string(call.Input) != `{"message":"hi"}` {
		t.Fatalf("call fields not preserved: %+v", call)
	}
}

func TestReplyPayloadRoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"content":[{"type":"text","text":"Echo: hi"}]}`)
	b, err := json.Marshal(Reply{CallID: "c1", Result: raw})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Reply
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.CallID != "c1" || string(got.Result) != string(raw) {
		t.Fatalf("payload changed: %s", b)
	}
}
