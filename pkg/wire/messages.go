package wire

import (
	"crypto/subtle"

	"github.com/g3-bmx/ble-credential-client/pkg/bcrypto"
)

// Fixed frame lengths.
const (
	authRequestLen        = 1 + 16 + 16 + 32 // type + device_id + iv + enc(Nonce_M)
	authResponseLen       = 1 + 16 + 48      // type + iv + enc(Nonce_M || Nonce_R)
	credentialMinLen      = 1 + 16 + 16      // type + iv + at least one ciphertext block
	credentialResponseLen = 2                // type + status
	errorLen              = 2                // type + error_code

	nonceSize = 16
)

// Result is the outcome carried by a CREDENTIAL_RESPONSE.
type Result struct {
	Success bool
	Message string
}

// checkReaderError inspects the leading byte of a non-empty frame. If it is
// TypeError, it returns a *ReaderError (or ErrUnknownError) and ok=true,
// telling the caller to stop parsing. Otherwise ok=false and the caller
// should continue with its own type-specific parse.
func checkReaderError(data []byte) (err error, ok bool) {
	if MessageType(data[0]) != TypeError {
		return nil, false
	}
	if len(data) < errorLen {
		return ErrResponseTooShort, true
	}
	code := ErrorCode(data[1])
	msg, known := code.Message()
	if !known {
		return ErrUnknownError, true
	}
	return &ReaderError{Code: code, Message: msg}, true
}

// BuildAuthRequest constructs an AUTH_REQUEST frame: a freshly generated
// Nonce_M encrypted under deviceKey with a fresh IV, alongside the
// plaintext deviceID. It returns the frame bytes and the Nonce_M the
// caller must retain to validate the AUTH_RESPONSE.
func BuildAuthRequest(deviceID, deviceKey []byte) (frame []byte, nonceM []byte, err error) {
	nonceM, err = bcrypto.Random(nonceSize)
	if err != nil {
		return nil, nil, err
	}

	enc, err := bcrypto.Encrypt(deviceKey, nonceM, nil)
	if err != nil {
		return nil, nil, err
	}

	frame = make([]byte, 0, authRequestLen)
	frame = append(frame, byte(TypeAuthRequest))
	frame = append(frame, deviceID...)
	frame = append(frame, enc.IV...)
	frame = append(frame, enc.Ciphertext...)

	return frame, nonceM, nil
}

// ParseAuthResponse validates and decrypts an AUTH_RESPONSE frame,
// returning the reader's Nonce_R. expectedNonceM must be the Nonce_M this
// client generated for the in-flight AUTH_REQUEST; a mismatch between it
// and the echoed value is ErrNonceMismatch, which callers must treat as
// terminal (no retry).
func ParseAuthResponse(data []byte, deviceKey, expectedNonceM []byte) (nonceR []byte, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}
	if err, ok := checkReaderError(data); ok {
		return nil, err
	}
	if MessageType(data[0]) != TypeAuthResponse {
		return nil, ErrUnexpectedType
	}
	if len(data) < authResponseLen {
		return nil, ErrResponseTooShort
	}

	iv := data[1:17]
	ciphertext := data[17:authResponseLen]

	plaintext, err := bcrypto.Decrypt(deviceKey, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) != 2*nonceSize {
		return nil, ErrInvalidPlaintextLength
	}

	echoedNonceM := plaintext[:nonceSize]
	if subtle.ConstantTimeCompare(echoedNonceM, expectedNonceM) != 1 {
		return nil, ErrNonceMismatch
	}

	nonceR = make([]byte, nonceSize)
	copy(nonceR, plaintext[nonceSize:])
	return nonceR, nil
}

// BuildCredential constructs a CREDENTIAL frame carrying the UTF-8 bytes
// of credential, encrypted under deviceKey with a fresh IV.
func BuildCredential(deviceKey []byte, credential string) ([]byte, error) {
	enc, err := bcrypto.Encrypt(deviceKey, []byte(credential), nil)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 1+16+len(enc.Ciphertext))
	frame = append(frame, byte(TypeCredential))
	frame = append(frame, enc.IV...)
	frame = append(frame, enc.Ciphertext...)

	return frame, nil
}

// ParseCredentialResponse validates a CREDENTIAL_RESPONSE (or ERROR) frame
// and maps its status/error code to a Result.
func ParseCredentialResponse(data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyResponse
	}
	if err, ok := checkReaderError(data); ok {
		return Result{}, err
	}
	if MessageType(data[0]) != TypeCredentialResponse {
		return Result{}, ErrUnexpectedType
	}
	if len(data) < credentialResponseLen {
		return Result{}, ErrResponseTooShort
	}

	status := Status(data[1])
	msg, known := status.Message()
	if !known {
		return Result{}, ErrUnknownStatus
	}

	return Result{Success: status == StatusSuccess, Message: msg}, nil
}
