// Package negotiate implements conditional GET and response compression.
//
// Encoding selection follows a fixed preference: zstd, then gzip, then the
// identity body. Quality values in Accept-Encoding are only used to exclude a
// coding (q=0); they never reorder the preference. A request without
// Accept-Encoding gets the identity body.
//
// Write emits the representation's ETag and "Vary: Accept-Encoding" on every
// response, answers a matching If-None-Match with 304 and no body, and sets
// Content-Length for the encoding actually sent.
package negotiate
