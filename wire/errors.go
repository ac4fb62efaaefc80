package wire

import (
	"errors"
	"fmt"
)

// Sentinel errors for framing failures. Callers distinguish failure
// modes with errors.Is.
var (
	// ErrBufferTooSmall means the caller-supplied encode target cannot
	// hold the packet. This is a programmer or configuration error and
	// is surfaced immediately rather than truncating.
	ErrBufferTooSmall = errors.New("wire: buffer too small")

	// ErrMalformedHeader means header bytes did not parse to a valid
	// header. Unrecoverable for the connection that produced them.
	ErrMalformedHeader = errors.New("wire: malformed header")

	// ErrProtocolViolation means the peer sent a structurally valid
	// header that violates the session's limits. Unrecoverable for
	// that connection.
	ErrProtocolViolation = errors.New("wire: protocol violation")

	// ErrClosed is returned when feeding a reassembler that has
	// reached its terminal state.
	ErrClosed = errors.New("wire: reassembler closed")
)

// MalformedHeaderError records which header field failed validation and
// the offending value. It matches ErrMalformedHeader under errors.Is.
type MalformedHeaderError struct {
	Field string
	Value uint64
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("wire: malformed header: %s=%d", e.Field, e.Value)
}

func (e *MalformedHeaderError) Is(target error) bool {
	return target == ErrMalformedHeader
}
