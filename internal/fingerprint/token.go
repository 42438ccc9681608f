// ABOUTME: Content fingerprints used as ETag validators
// ABOUTME: A BLAKE3 keyed digest of the exact bytes served, rendered as a quoted string

package fingerprint

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Token is a quoted fingerprint, usable directly as an ETag value
type Token string

// domainKey separates response fingerprints from any other BLAKE3 use.
// It is the ASCII name of the domain zero-padded to 32 bytes; changing it
// changes every token.
var domainKey = [32]byte{
	'h', 'u', 'b', '.', 'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// Fingerprint returns the token of body.
// Identical bytes give identical tokens in every process and snapshot.
func Fingerprint(body []byte) Token {
	// NewKeyed only fails for a key that is not 32 bytes.
	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		panic("fingerprint: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(body)
	return Token(`"` + hex.EncodeToString(hasher.Sum(nil)) + `"`)
}

// String returns the quoted token
func (t Token) String() string {
	return string(t)
}
