package chatsession

import "fmt"

// ErrNodeNotVerified is returned by Send when the target peer is not
// currently present in the verified-node registry. Broadcast counts such
// targets in ErrPartialFailure instead.
type ErrNodeNotVerified struct {
	Target string
}

func (e *ErrNodeNotVerified) Error() string {
	return fmt.Sprintf("chatsession: node not verified: %s", e.Target)
}

// ErrPartialFailure is returned by Broadcast when one or more targets
// failed to send, including the case where every target failed.
type ErrPartialFailure struct {
	NumFailed int
}

func (e *ErrPartialFailure) Error() string {
	return fmt.Sprintf("chatsession: partial failure: %d targets failed", e.NumFailed)
}

// ErrDeserialization wraps a codec failure while decoding an inbound frame.
type ErrDeserialization struct {
	Cause error
}

func (e *ErrDeserialization) Error() string {
	return fmt.Sprintf("chatsession: deserialization failed: %v", e.Cause)
}

func (e *ErrDeserialization) Unwrap() error { return e.Cause }
