// ABOUTME: Accept-Encoding parsing and the fixed zstd > gzip > identity selection
// ABOUTME: Quality values only exclude encodings (q=0); they never reorder preference

package negotiate

import (
	"strconv"
	"strings"
)

// Encoding is a content coding the server can send
type Encoding string

// Supported encodings
const (
	Identity Encoding = "identity"
	Gzip     Encoding = "gzip"
	Zstd     Encoding = "zstd"
)

// Preference lists encodings in the order they are chosen
var Preference = []Encoding{Zstd, Gzip, Identity}

// AcceptEncoding is a parsed Accept-Encoding header
type AcceptEncoding struct {
	listed   map[string]float64
	wildcard float64
	hasWild  bool
}

// ParseAcceptEncoding parses an Accept-Encoding header value.
// Codings are case-insensitive. Entries with a malformed q value are ignored.
func ParseAcceptEncoding(header string) AcceptEncoding {
	ae := AcceptEncoding{listed: make(map[string]float64)}

	for _, part := range strings.Split(header, ",") {
		params := strings.Split(part, ";")
		coding := strings.ToLower(strings.TrimSpace(params[0]))
		if coding == "" {
			continue
		}

		q := 1.0
		valid := true
		for _, param := range params[1:] {
			name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(name), "q") {
				continue
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || parsed < 0 || parsed > 1 {
				valid = false
				break
			}
			q = parsed
		}
		if !valid {
			continue
		}

		if coding == "*" {
			ae.wildcard = q
			ae.hasWild = true
			continue
		}
		ae.listed[coding] = q
	}
	return ae
}

// Acceptable reports whether the client accepts enc.
// A listed coding is acceptable unless its q is 0. An unlisted coding is
// acceptable when "*" is listed with a non-zero q. Identity is acceptable
// unless explicitly excluded.
func (ae AcceptEncoding) Acceptable(enc Encoding) bool {
	if q, ok := ae.listed[string(enc)]; ok {
		return q > 0
	}
	if ae.hasWild {
		return ae.wildcard > 0
	}
	return enc == Identity
}
