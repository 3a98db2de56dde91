// Package id generates prefixed, URL-safe record identifiers.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used by the sync engine.
const (
	PrefixDownload  = "dl"
	PrefixProgress  = "rp"
	PrefixSSEClient = "sse"
	PrefixToken     = "tok"
)

// Generate returns prefix + "-" + a 21 character NanoID, e.g. "dl-V1StGXR8_Z5jdHi6B-myT".
//
// The NanoID alphabet is [A-Za-z0-9_-], so generated IDs never contain the ':'
// separator used by compound store keys.
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics when the system entropy source fails.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}
