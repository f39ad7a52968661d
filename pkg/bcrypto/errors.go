package bcrypto

import "errors"

// Errors returned by the bcrypto package.
var (
	// ErrInvalidKeySize is returned when a key is not exactly 16 bytes.
	ErrInvalidKeySize = errors.New("bcrypto: invalid key size, must be 16 bytes")

	// ErrInvalidIVSize is returned when an IV is not exactly 16 bytes.
	ErrInvalidIVSize = errors.New("bcrypto: invalid iv size, must be 16 bytes")

	// ErrInvalidCiphertext is returned when ciphertext length is zero or
	// not a multiple of the block size.
	ErrInvalidCiphertext = errors.New("bcrypto: ciphertext must be a non-zero multiple of 16 bytes")

	// ErrInvalidPadding is returned when PKCS#7 padding fails validation.
	ErrInvalidPadding = errors.New("bcrypto: invalid PKCS#7 padding")

	// ErrCipherFailure wraps an unexpected failure constructing the block cipher.
	ErrCipherFailure = errors.New("bcrypto: cipher failure")

	// ErrRandomFailure is returned when the CSPRNG cannot produce bytes.
	ErrRandomFailure = errors.New("bcrypto: random source failure")
)
