package wire

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

func TestFrameRoundTrip(t *testing.T) {
	type payload struct {
		A string
		B int
	}
	var buf bytes.Buffer
	want := payload{A: "hello", B: 42}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	var got payload
	if err := ReadJSON(&buf, DefaultMaxFrame, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, map[string]string{"x": "this payload is over the cap"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := ReadFrame(&buf, 4); err == nil {
		t.Fatal("expected oversize frame to be rejected")
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, "hello"); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	truncated := buf.Bytes()[:buf.Len()-2]
	if _, err := ReadFrame(bytes.NewReader(truncated), DefaultMaxFrame); err == nil {
		t.Fatal("expected truncated frame to fail cleanly")
	}
}

func TestUserInfoDisplayName(t *testing.T) {
	info := UserInfo{DeviceName: "kitchen-pi"}
	if got := info.DisplayName(); got != "kitchen-pi" {
		t.Fatalf("DisplayName() = %q, want device_name fallback", got)
	}
	nick := "Kitchen"
	info.Nickname = &nick
	if got := info.DisplayName(); got != "Kitchen" {
		t.Fatalf("DisplayName() = %q, want nickname", got)
	}
}

func TestUserInfoRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		nick := rapid.String().Draw(rt, "nickname")
		info := UserInfo{
			DeviceName: rapid.StringMatching(`[a-z-]{1,20}`).Draw(rt, "device_name"),
			CustomData: map[string]string{"region": rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "region")},
		}
		if nick != "" {
			info.Nickname = &nick
		}

		var buf bytes.Buffer
		if err := WriteFrame(&buf, info); err != nil {
			rt.Fatalf("WriteFrame: %v", err)
		}
		var got UserInfo
		if err := ReadJSON(&buf, DefaultMaxFrame, &got); err != nil {
			rt.Fatalf("ReadJSON: %v", err)
		}
		if got.DeviceName != info.DeviceName {
			rt.Fatalf("device_name mismatch: got %q want %q", got.DeviceName, info.DeviceName)
		}
		if got.CustomData["region"] != info.CustomData["region"] {
			rt.Fatalf("custom_data mismatch: got %q want %q", got.CustomData["region"], info.CustomData["region"])
		}
	})
}

func TestChatMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		content := rapid.String().Draw(rt, "content")
		msg := NewText(content, rapid.Int64Range(0, 1<<40).Draw(rt, "ts"))
		msg.Text.SenderPeerID = rapid.StringMatching(`[a-zA-Z0-9]{1,20}`).Draw(rt, "sender")

		var buf bytes.Buffer
		if err := WriteFrame(&buf, msg); err != nil {
			rt.Fatalf("WriteFrame: %v", err)
		}
		var got ChatMessage
		if err := ReadJSON(&buf, ChatRequestMaxFrame, &got); err != nil {
			rt.Fatalf("ReadJSON: %v", err)
		}
		if got.Text == nil {
			rt.Fatal("decoded message lost its Text variant")
		}
		if *got.Text != *msg.Text {
			rt.Fatalf("round trip mismatch: got %+v, want %+v", *got.Text, *msg.Text)
		}
	})
}

func TestChatMessageVariantSelectors(t *testing.T) {
	typing := ChatMessage{Typing: &TypingIndicator{SenderPeerID: "p1", IsTyping: true}}
	if _, ok := typing.ID(); ok {
		t.Fatal("TypingIndicator should have no ID")
	}
	if sender, ok := typing.SenderPeerID(); !ok || sender != "p1" {
		t.Fatalf("SenderPeerID() = (%q, %v), want (p1, true)", sender, ok)
	}

	ack := ChatMessage{Ack: &MessageAck{MessageID: "m1", Received: true}}
	if id, ok := ack.ID(); !ok || id != "m1" {
		t.Fatalf("ID() = (%q, %v), want (m1, true)", id, ok)
	}
	if _, ok := ack.SenderPeerID(); ok {
		t.Fatal("Ack should have no sender")
	}
}
