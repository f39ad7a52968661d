package bcrypto

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// fingerprintInfo is the fixed HKDF info string for log-correlation
// fingerprints.
var fingerprintInfo = []byte("credential-client/diagnostic-fingerprint")

// fingerprintSize is the number of derived bytes, hex-encoded for display.
const fingerprintSize = 8

// Fingerprint derives an 8-byte, hex-encoded, non-reversible correlation
// tag from deviceID via HKDF-SHA256. It exists so diagnostic logging can
// disambiguate which configured device an attempt belongs to without ever
// emitting device_id itself in logs.
func Fingerprint(deviceID []byte) string {
	kdf := hkdf.New(sha256.New, deviceID, nil, fingerprintInfo)
	out := make([]byte, fingerprintSize)
	// hkdf.New with a fixed info/size never fails on Read for a bounded
	// length within HKDF's per-hash expansion limit.
	if _, err := io.ReadFull(kdf, out); err != nil {
		return "unavailable"
	}
	return hex.EncodeToString(out)
}
