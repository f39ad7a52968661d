package main

import (
	"github.com/g3-bmx/ble-credential-client/pkg/bcrypto"
	"github.com/g3-bmx/ble-credential-client/pkg/wire"
)

// buildAuthResponse decrypts the client's Nonce_M from an AUTH_REQUEST
// frame and answers with a well-formed AUTH_RESPONSE, echoing Nonce_M
// alongside a freshly generated Nonce_R, exactly as a real reader would.
func (d demoReader) buildAuthResponse(authRequest []byte) ([]byte, bool) {
	if len(authRequest) < 65 {
		return nil, false
	}

	iv := authRequest[17:33]
	ciphertext := authRequest[33:65]

	nonceM, err := bcrypto.Decrypt(d.deviceKey, iv, ciphertext)
	if err != nil {
		return []byte{byte(wire.TypeError), byte(wire.ErrorDecryptionFailed)}, true
	}

	nonceR, err := bcrypto.Random(16)
	if err != nil {
		return []byte{byte(wire.TypeError), byte(wire.ErrorInvalidState)}, true
	}

	plaintext := append(append([]byte{}, nonceM...), nonceR...)
	enc, err := bcrypto.Encrypt(d.deviceKey, plaintext, nil)
	if err != nil {
		return []byte{byte(wire.TypeError), byte(wire.ErrorInvalidState)}, true
	}

	frame := []byte{byte(wire.TypeAuthResponse)}
	frame = append(frame, enc.IV...)
	frame = append(frame, enc.Ciphertext...)
	return frame, true
}
