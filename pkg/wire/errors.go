package wire

import (
	"errors"
	"fmt"
)

// Errors returned while parsing frames.
var (
	// ErrEmptyResponse is returned when a parse function receives zero bytes.
	ErrEmptyResponse = errors.New("wire: empty response")

	// ErrUnexpectedType is returned when the first byte does not match the
	// message type expected by the calling parse function.
	ErrUnexpectedType = errors.New("wire: unexpected message type")

	// ErrResponseTooShort is returned when a message is shorter than its
	// fixed required length.
	ErrResponseTooShort = errors.New("wire: response too short")

	// ErrUnknownStatus is returned when a CREDENTIAL_RESPONSE carries a
	// status byte not in the Section 6 table.
	ErrUnknownStatus = errors.New("wire: unknown status code")

	// ErrUnknownError is returned when an ERROR message carries an error
	// code not in the Section 6 table.
	ErrUnknownError = errors.New("wire: unknown error code")

	// ErrNonceMismatch is returned when the echoed Nonce_M in an
	// AUTH_RESPONSE does not match the Nonce_M this client generated. This
	// is terminal: callers must not retry on ErrNonceMismatch.
	ErrNonceMismatch = errors.New("wire: nonce mismatch")

	// ErrInvalidPlaintextLength is returned when a decrypted payload is not
	// the exact length the message format requires.
	ErrInvalidPlaintextLength = errors.New("wire: invalid decrypted payload length")
)

// ReaderError wraps a well-formed ERROR message (type 0xFF) from the
// reader, carrying the code the reader sent and its mapped message.
type ReaderError struct {
	Code    ErrorCode
	Message string
}

func (e *ReaderError) Error() string {
	return fmt.Sprintf("wire: reader error %#x: %s", byte(e.Code), e.Message)
}

// Is allows errors.Is(err, ErrReaderError) style matching against any
// *ReaderError regardless of code.
func (e *ReaderError) Is(target error) bool {
	_, ok := target.(*ReaderError)
	return ok
}
