package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix allows the hashed layout to change later.
const (
	DomainModel    = "dyngen/model/v1"
	DomainScope    = "dyngen/scope/v1"
	DomainFragment = "dyngen/fragment/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ModelHash is the content hash of a model class. Lazy builds compare it with
// the hash recorded for the previous build of the same directory.
func ModelHash(m *ModelClass) (string, error) {
	canonical, err := MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("ModelHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainModel, canonical), nil
}

// ScopeHash identifies the incremental set declared in one scope.
func ScopeHash(scope string, inc RequiredSet) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"scope":    scope,
		"required": inc.keyStrings(),
	})
	if err != nil {
		return "", fmt.Errorf("ScopeHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScope, canonical), nil
}

// FragmentHash identifies emitted source text.
func FragmentHash(text string) string {
	return hashWithDomain(DomainFragment, []byte(text))
}

// MustModelHash is like ModelHash but panics on error.
// Use only in tests or when the model is known to be valid.
func MustModelHash(m *ModelClass) string {
	h, err := ModelHash(m)
	if err != nil {
		panic(err)
	}
	return h
}
