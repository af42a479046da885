package wire

import (
	"bytes"
	"testing"
)

func TestRoundTripPrimitives(t *testing.T) {
	cases := []any{
		nil,
		true,
		false,
		int64(0),
		int64(-1),
		int64(1 << 40),
		"hello",
		[]byte("raw bytes"),
		[]any{int64(1), "two", true, nil},
		map[string]any{"a": int64(1), "b": "two"},
		3.5,
	}
	for _, v := range cases {
		enc, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", v, err)
		}
		got, n, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode(%#v): %v", v, err)
		}
		if n != len(enc) {
			t.Fatalf("Decode consumed %d of %d bytes", n, len(enc))
		}
		if !deepEqualWire(v, got) {
			t.Fatalf("round trip mismatch: want %#v got %#v", v, got)
		}
	}
}

func TestDecodeNeedsMoreInput(t *testing.T) {
	enc, err := Encode(map[string]any{"rows": int64(24), "cols": int64(80)})
	if err != nil {
		t.Fatal(err)
	}
	for n := 0; n < len(enc); n++ {
		_, consumed, err := Decode(enc[:n])
		if err != ErrNeedMoreInput {
			t.Fatalf("prefix of length %d: want ErrNeedMoreInput, got value=%v err=%v", n, consumed, err)
		}
		if consumed != 0 {
			t.Fatalf("prefix of length %d: consumed should be 0 on NeedMoreInput, got %d", n, consumed)
		}
	}
}

func TestDecodeTwoMessagesConcatenated(t *testing.T) {
	a, _ := EncodeRequest(1, "ping", []any{})
	b, _ := EncodeNotification("pty_exited", []any{int64(0), int64(1)})
	stream := append(append([]byte{}, a...), b...)

	var acc Accumulator
	var got []*Message
	for i := range stream {
		acc.Feed(stream[i : i+1])
		for {
			msg, ok, err := acc.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, msg)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Request == nil || got[0].Request.Method != "ping" {
		t.Fatalf("first message = %#v, want ping request", got[0])
	}
	if got[1].Notification == nil || got[1].Notification.Method != "pty_exited" {
		t.Fatalf("second message = %#v, want pty_exited notification", got[1])
	}
}

func TestEncodeTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("x"), MessageSizeMax+1)
	if _, err := Encode(big); err != ErrTooLarge {
		t.Fatalf("Encode of oversized payload: want ErrTooLarge, got %v", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	v := map[string]any{"z": int64(1), "a": int64(2), "m": int64(3)}
	a, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(v)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("Encode not deterministic: %x != %x", a, b)
	}
}

func deepEqualWire(want, got any) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case []byte:
		g, ok := got.([]byte)
		return ok && bytes.Equal(w, g)
	case []any:
		g, ok := got.([]any)
		if !ok || len(w) != len(g) {
			return false
		}
		for i := range w {
			if !deepEqualWire(w[i], g[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok || len(w) != len(g) {
			return false
		}
		for k, wv := range w {
			gv, present := g[k]
			if !present || !deepEqualWire(wv, gv) {
				return false
			}
		}
		return true
	case int64:
		switch g := got.(type) {
		case int64:
			return w == g
		case uint64:
			return w >= 0 && uint64(w) == g
		}
		return false
	default:
		return want == got
	}
}
