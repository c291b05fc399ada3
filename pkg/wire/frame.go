// Package wire implements the length-prefixed JSON framing shared by the
// user-info and chat request/response protocols.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Protocol identifiers negotiated over the libp2p stream multiplexer.
const (
	UserInfoProtocolID = "/localp2p/user-info/1.0.0"
	ChatProtocolID      = "/localp2p/chat/1.0.0"
)

// Frame size limits. The user-info protocol has no explicit cap in the
// specification beyond "transport limits"; DefaultMaxFrame bounds allocation
// from an adversarial peer without constraining legitimate payloads.
const (
	DefaultMaxFrame   = 64 * 1024
	ChatRequestMaxFrame  = 1 << 20 // 1 MiB
	ChatResponseMaxFrame = 1024    // 1 KiB
)

// WriteFrame marshals v to JSON and writes it as len:uint32_be || body.
func WriteFrame(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads a len:uint32_be || body frame, rejecting bodies over
// maxLen, and returns the raw body bytes.
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxLen {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds limit %d", n, maxLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return body, nil
}

// ReadJSON reads a frame and unmarshals it into v.
func ReadJSON(r io.Reader, maxLen uint32, v any) error {
	body, err := ReadFrame(r, maxLen)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("wire: unmarshal frame: %w", err)
	}
	return nil
}
