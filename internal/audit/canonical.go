package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize re-encodes a JSON document with object keys sorted and no
// insignificant whitespace. Numbers keep their literal form.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return out, nil
}

// CanonicalJSON marshals v and canonicalizes the result.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return Canonicalize(raw)
}

// ChainHash is hex(SHA256(priorHash || canonical)). The genesis record uses
// an empty prior hash.
func ChainHash(priorHash string, canonical []byte) string {
	h := sha256.New()
	h.Write([]byte(priorHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
