package wire

import "testing"

func TestEncodeDecodeRequest(t *testing.T) {
	enc, err := EncodeRequest(1, "ping", []any{})
	if err != nil {
		t.Fatal(err)
	}
	msg, n, err := DecodeMessage(enc)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, want %d", n, len(enc))
	}
	if msg.Request == nil {
		t.Fatal("expected a request")
	}
	if msg.Request.MsgID != 1 || msg.Request.Method != "ping" {
		t.Fatalf("got %+v", msg.Request)
	}
}

func TestEncodeDecodeResponse(t *testing.T) {
	enc, err := EncodeResponse(1, nil, "pong")
	if err != nil {
		t.Fatal(err)
	}
	msg, _, err := DecodeMessage(enc)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Response == nil || msg.Response.MsgID != 1 || msg.Response.Err != nil || msg.Response.Result != "pong" {
		t.Fatalf("got %+v", msg.Response)
	}
}

func TestEncodeDecodeNotification(t *testing.T) {
	enc, err := EncodeNotification("pty_exited", []any{int64(0), int64(137)})
	if err != nil {
		t.Fatal(err)
	}
	msg, _, err := DecodeMessage(enc)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Notification == nil || msg.Notification.Method != "pty_exited" {
		t.Fatalf("got %+v", msg.Notification)
	}
	params, ok := msg.Notification.Params.([]any)
	if !ok || len(params) != 2 {
		t.Fatalf("params = %#v", msg.Notification.Params)
	}
}

func TestDecodeMessageRejectsWrongArity(t *testing.T) {
	enc, err := Encode([]any{int64(0), int64(1), "ping"}) // missing params
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecodeMessage(enc); err == nil {
		t.Fatal("expected an error for a malformed request frame")
	}
}

func TestDecodeMessageRejectsNonArray(t *testing.T) {
	enc, err := Encode("not a frame")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecodeMessage(enc); err == nil {
		t.Fatal("expected an error for a non-array top-level frame")
	}
}

func TestDecodeMessageRejectsUnknownKind(t *testing.T) {
	enc, err := Encode([]any{int64(9), "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecodeMessage(enc); err == nil {
		t.Fatal("expected an error for an unknown discriminator")
	}
}
