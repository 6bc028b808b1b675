package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep hashes of different document kinds apart.
// The version suffix leaves room for an algorithm change.
const (
	DomainRunInput   = "opcap/run-input/v1"
	DomainRunOutput  = "opcap/run-output/v1"
	DomainParameters = "opcap/parameters/v1"
)

// HashBytes computes SHA256(domain + 0x00 + data) as lowercase hex
func HashBytes(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash canonically encodes v and hashes it under domain
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash %s: %w", domain, err)
	}
	return HashBytes(domain, data), nil
}
