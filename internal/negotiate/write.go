// ABOUTME: Conditional-GET matching and the response writer for cached representations
// ABOUTME: Emits ETag and Vary on every response and a 304 with no body on a validator match

package negotiate

import (
	"net/http"
	"strconv"
	"strings"
)

// Representation is a response body available in one or more encodings
type Representation interface {
	// ETag returns the quoted validator of the identity body
	ETag() string
	// Encoded returns the body in enc, or false when it was not precomputed
	Encoded(enc Encoding) ([]byte, bool)
}

// Options controls the headers Write sets
type Options struct {
	ContentType  string
	CacheControl string
}

// Matches reports whether an If-None-Match header matches etag.
// The header is a comma-separated list; "*" matches anything and the weak
// prefix W/ is ignored on both sides.
func Matches(ifNoneMatch, etag string) bool {
	etag = strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if candidate != "" && strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// Choose picks the encoding to send: the most preferred encoding the client
// accepts and rep has. Identity is the fallback.
func Choose(acceptEncoding string, rep Representation) (Encoding, []byte) {
	ae := ParseAcceptEncoding(acceptEncoding)
	for _, enc := range Preference {
		if !ae.Acceptable(enc) {
			continue
		}
		if body, ok := rep.Encoded(enc); ok {
			return enc, body
		}
	}
	body, _ := rep.Encoded(Identity)
	return Identity, body
}

// headerList joins every line of a list-valued header into one value
func headerList(r *http.Request, name string) string {
	return strings.Join(r.Header.Values(name), ",")
}

// Write sends rep honoring If-None-Match and Accept-Encoding.
// HEAD requests get the headers of the equivalent GET without a body.
func Write(w http.ResponseWriter, r *http.Request, rep Representation, opts Options) {
	h := w.Header()
	h.Add("Vary", "Accept-Encoding")
	h.Set("ETag", rep.ETag())
	if opts.CacheControl != "" {
		h.Set("Cache-Control", opts.CacheControl)
	}

	if inm := headerList(r, "If-None-Match"); inm != "" && Matches(inm, rep.ETag()) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	enc, body := Choose(headerList(r, "Accept-Encoding"), rep)
	if opts.ContentType != "" {
		h.Set("Content-Type", opts.ContentType)
	}
	if enc != Identity {
		h.Set("Content-Encoding", string(enc))
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		w.Write(body)
	}
}
