package observation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"golang.org/x/crypto/blake2b"
)

// digestDomain separates event digests from any other hash over the same bytes.
const digestDomain = "odyssey-rea/economic-event/v1"

// Digest computes the content address of e: blake2b-256 over the domain tag,
// a NUL separator and the RFC 8785 canonical JSON of the event without its
// Digest field.
func Digest(e EconomicEvent) (string, error) {
	e.Digest = ""
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("digest: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("digest: canonicalise: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(digestDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyDigest reports whether e still matches its recorded digest.
func VerifyDigest(e EconomicEvent) (bool, error) {
	if e.Digest == "" {
		return false, nil
	}
	want, err := Digest(e)
	if err != nil {
		return false, err
	}
	return want == e.Digest, nil
}
