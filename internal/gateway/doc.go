// Package gateway orchestrates the hub-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the hub-gateway server.
// It owns the HTTP server, the compressor shared by every cache, and the
// snapshot currently being served.
//
// # Gateway Struct
//
// The Gateway struct is the main entry point:
//
//	type Gateway struct {
//	    config     *config.Config
//	    compressor *negotiate.Compressor
//	    snapshots  *snapshotHolder
//	    httpServer *http.Server
//	    watcher    *watcher
//	    logger     *slog.Logger
//	}
//
// # Snapshots
//
// A snapshot pairs an opened store with a document assembler and an empty
// fingerprint cache. Handlers acquire the current snapshot once per request
// and use it throughout, so a response never mixes data from two files.
//
// Reload opens the snapshot file again and publishes the result. The previous
// snapshot is retired in the background: its store closes after the last
// request holding it releases. With database.watch enabled, an fsnotify
// watcher calls Reload whenever a new file is renamed over the configured
// path, which is what `hub-gateway build` does.
//
// # HTTP API
//
// Routes live under /meltano/api/v1:
//
//	GET /plugins/index                          - every plugin by type
//	GET /plugins/{type}/index                   - plugins of one type
//	GET /plugins/{type}/{name}                  - plugin with all variants (name--variant serves one variant)
//	GET /plugins/{type}/{name}/default          - default variant
//	GET /plugins/{type}/{name}/{variant}        - one variant
//	GET /plugins/{type}/{name}/{variant}/readme - variant readme as HTML
//	GET /plugins/search                         - resolve name, type, variant
//	GET /plugins/made-with-sdk                  - SDK-built variants
//	GET /plugins/stats                          - plugin counts by type
//	GET /maintainers                            - every maintainer
//	GET /maintainers/top                        - maintainers by variant count
//	GET /maintainers/{id}                       - one maintainer
//
// Health endpoints sit at the root:
//
//	GET /health       - liveness
//	GET /health/ready - the current snapshot answers queries
//
// Every document response carries an ETag and Vary: Accept-Encoding, honors
// If-None-Match with 304, and is sent zstd or gzip encoded when the client
// accepts it. Errors are JSON of the form {"details": "..."}.
//
// Variant documents depend on the client's Meltano version, read from the
// User-Agent header; each compatibility level is cached under its own key.
//
// # Middleware
//
// Every request passes through, outermost first:
//
//  1. Request id (X-Request-ID, generated when absent)
//  2. Access log at debug level
//  3. Per-client rate limit (when enabled)
//  4. Request timeout (when configured)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown stops the HTTP server, then the watcher, then closes the store.
package gateway
