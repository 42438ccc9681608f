// ABOUTME: HTTP API handlers for the hub plugin and maintainer endpoints
// ABOUTME: Each handler builds a document once per snapshot and serves it with ETag and compression

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/hub-gateway/internal/fingerprint"
	"github.com/2389/hub-gateway/internal/hub"
	"github.com/2389/hub-gateway/internal/negotiate"
	"github.com/2389/hub-gateway/internal/store"
)

// apiPrefix is the mount point of every hub route
const apiPrefix = "/meltano/api/v1"

// Query parameter defaults
const (
	defaultSDKLimit       = 25
	defaultTopMaintainers = 10
)

const (
	contentTypeJSON = "application/json"
	contentTypeHTML = "text/html; charset=utf-8"
	cacheControl    = "public, max-age=300"
)

// registerRoutes adds the hub API routes to mux
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+apiPrefix+"/plugins/index", g.handlePluginIndex)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/search", g.handleSearch)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/made-with-sdk", g.handleMadeWithSDK)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/stats", g.handleStats)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/{type}/index", g.handleTypeIndex)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/{type}/{name}", g.handlePlugin)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/{type}/{name}/default", g.handleDefaultVariant)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/{type}/{name}/{variant}", g.handleVariant)
	mux.HandleFunc("GET "+apiPrefix+"/plugins/{type}/{name}/{variant}/readme", g.handleReadme)

	mux.HandleFunc("GET "+apiPrefix+"/maintainers", g.handleMaintainers)
	mux.HandleFunc("GET "+apiPrefix+"/maintainers/top", g.handleTopMaintainers)
	mux.HandleFunc("GET "+apiPrefix+"/maintainers/{id}", g.handleMaintainer)
}

// jsonDocument adapts a document builder to a cache builder
func jsonDocument[T any](build func(ctx context.Context) (T, error)) fingerprint.Builder {
	return func(ctx context.Context) ([]byte, error) {
		doc, err := build(ctx)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding document: %w", err)
		}
		return body, nil
	}
}

// serve answers r from the snapshot cache under key, building on first use
func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, snap *snapshot, key, contentType string, build fingerprint.Builder) {
	entry, err := snap.cache.GetOrBuild(r.Context(), key, build)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	negotiate.Write(w, r, entry, negotiate.Options{ContentType: contentType, CacheControl: cacheControl})
}

// handlePluginIndex handles GET /plugins/index
func (g *Gateway) handlePluginIndex(w http.ResponseWriter, r *http.Request) {
	snap := g.snapshots.acquire()
	defer snap.release()

	g.serve(w, r, snap, "index", contentTypeJSON, jsonDocument(snap.assembler.PluginIndex))
}

// handleTypeIndex handles GET /plugins/{type}/index
func (g *Gateway) handleTypeIndex(w http.ResponseWriter, r *http.Request) {
	pt, err := hub.ParsePluginType(r.PathValue("type"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	snap := g.snapshots.acquire()
	defer snap.release()

	g.serve(w, r, snap, "type-index:"+string(pt), contentTypeJSON,
		jsonDocument(func(ctx context.Context) (hub.PluginTypeIndex, error) {
			return snap.assembler.PluginTypeIndex(ctx, pt)
		}))
}

// handlePlugin handles GET /plugins/{type}/{name}.
// A name of the form plugin--variant serves that variant.
func (g *Gateway) handlePlugin(w http.ResponseWriter, r *http.Request) {
	pt, err := hub.ParsePluginType(r.PathValue("type"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	name := r.PathValue("name")
	level := hub.LevelForUserAgent(r.UserAgent())

	if plugin, variant, ok := strings.Cut(name, "--"); ok && plugin != "" && variant != "" {
		g.serveVariant(w, r, hub.VariantKey{PluginType: pt, Plugin: plugin, Variant: variant}, level)
		return
	}

	snap := g.snapshots.acquire()
	defer snap.release()

	key := fmt.Sprintf("plugin:%s/%s:%s", pt, name, level)
	g.serve(w, r, snap, key, contentTypeJSON,
		jsonDocument(func(ctx context.Context) (*hub.PluginDocument, error) {
			return snap.assembler.Plugin(ctx, pt, name, level)
		}))
}

// handleDefaultVariant handles GET /plugins/{type}/{name}/default
func (g *Gateway) handleDefaultVariant(w http.ResponseWriter, r *http.Request) {
	pt, err := hub.ParsePluginType(r.PathValue("type"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	name := r.PathValue("name")
	level := hub.LevelForUserAgent(r.UserAgent())

	snap := g.snapshots.acquire()
	defer snap.release()

	key := fmt.Sprintf("default:%s/%s:%s", pt, name, level)
	g.serve(w, r, snap, key, contentTypeJSON,
		jsonDocument(func(ctx context.Context) (*hub.VariantDocument, error) {
			return snap.assembler.DefaultVariant(ctx, pt, name, level)
		}))
}

// handleVariant handles GET /plugins/{type}/{name}/{variant}
func (g *Gateway) handleVariant(w http.ResponseWriter, r *http.Request) {
	pt, err := hub.ParsePluginType(r.PathValue("type"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	key := hub.VariantKey{PluginType: pt, Plugin: r.PathValue("name"), Variant: r.PathValue("variant")}
	g.serveVariant(w, r, key, hub.LevelForUserAgent(r.UserAgent()))
}

func (g *Gateway) serveVariant(w http.ResponseWriter, r *http.Request, key hub.VariantKey, level hub.Level) {
	snap := g.snapshots.acquire()
	defer snap.release()

	g.serveVariantFrom(w, r, snap, key, level)
}

// serveVariantFrom serves one variant document; search results share these entries
func (g *Gateway) serveVariantFrom(w http.ResponseWriter, r *http.Request, snap *snapshot, key hub.VariantKey, level hub.Level) {
	g.serve(w, r, snap, fmt.Sprintf("variant:%s:%s", key, level), contentTypeJSON,
		jsonDocument(func(ctx context.Context) (*hub.VariantDocument, error) {
			return snap.assembler.Variant(ctx, key, level)
		}))
}

// handleReadme handles GET /plugins/{type}/{name}/{variant}/readme
func (g *Gateway) handleReadme(w http.ResponseWriter, r *http.Request) {
	pt, err := hub.ParsePluginType(r.PathValue("type"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	key := hub.VariantKey{PluginType: pt, Plugin: r.PathValue("name"), Variant: r.PathValue("variant")}

	snap := g.snapshots.acquire()
	defer snap.release()

	g.serve(w, r, snap, "readme:"+key.String(), contentTypeHTML, func(ctx context.Context) ([]byte, error) {
		return snap.assembler.Readme(ctx, key)
	})
}

// handleSearch handles GET /plugins/search?name=&type=&variant=
func (g *Gateway) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := hub.SearchQuery{
		Name:       q.Get("name"),
		PluginType: hub.PluginType(q.Get("type")),
		Variant:    q.Get("variant"),
	}

	snap := g.snapshots.acquire()
	defer snap.release()

	key, err := snap.assembler.Resolve(r.Context(), query)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.serveVariantFrom(w, r, snap, key, hub.LevelForUserAgent(r.UserAgent()))
}

// handleMadeWithSDK handles GET /plugins/made-with-sdk?limit=&plugin_type=.
// The limit is unbounded, so responses are fingerprinted but not cached.
func (g *Gateway) handleMadeWithSDK(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit", defaultSDKLimit)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	pluginType := q.Get("plugin_type")
	if pluginType == "any" {
		pluginType = ""
	}

	snap := g.snapshots.acquire()
	defer snap.release()

	docs, err := snap.assembler.SDKPlugins(r.Context(), hub.PluginType(pluginType), limit)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	body, err := json.Marshal(docs)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	entry, err := snap.cache.Build("made-with-sdk", body)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	negotiate.Write(w, r, entry, negotiate.Options{ContentType: contentTypeJSON, CacheControl: cacheControl})
}

// handleStats handles GET /plugins/stats
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := g.snapshots.acquire()
	defer snap.release()

	g.serve(w, r, snap, "stats", contentTypeJSON, jsonDocument(snap.assembler.Stats))
}

// handleMaintainers handles GET /maintainers
func (g *Gateway) handleMaintainers(w http.ResponseWriter, r *http.Request) {
	snap := g.snapshots.acquire()
	defer snap.release()

	g.serve(w, r, snap, "maintainers", contentTypeJSON, jsonDocument(snap.assembler.Maintainers))
}

// handleTopMaintainers handles GET /maintainers/top?count=
func (g *Gateway) handleTopMaintainers(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query().Get("count"), "count", defaultTopMaintainers)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	snap := g.snapshots.acquire()
	defer snap.release()

	// Out-of-range counts fail in the builder and are never cached.
	g.serve(w, r, snap, "maintainers-top:"+strconv.Itoa(n), contentTypeJSON,
		jsonDocument(func(ctx context.Context) ([]hub.MaintainerPluginCount, error) {
			return snap.assembler.TopMaintainers(ctx, n)
		}))
}

// handleMaintainer handles GET /maintainers/{id}
func (g *Gateway) handleMaintainer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap := g.snapshots.acquire()
	defer snap.release()

	g.serve(w, r, snap, "maintainer:"+id, contentTypeJSON,
		jsonDocument(func(ctx context.Context) (*hub.MaintainerDetails, error) {
			return snap.assembler.Maintainer(ctx, id)
		}))
}

// intParam parses an optional integer query parameter
func intParam(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &hub.BadRequestError{Message: fmt.Sprintf("query parameter '%s' must be an integer", name)}
	}
	return n, nil
}

// sendError maps err to a status code and writes it as a JSON error
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	var badRequest *hub.BadRequestError
	var notFound *hub.NotFoundError

	switch {
	case errors.As(err, &badRequest):
		g.sendJSONError(w, http.StatusBadRequest, badRequest.Message)
	case errors.As(err, &notFound):
		g.sendJSONError(w, http.StatusNotFound, notFound.Message)
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, context.DeadlineExceeded):
		g.logger.Warn("request timed out", "path", r.URL.Path, "request_id", RequestID(r.Context()))
		g.sendJSONError(w, http.StatusServiceUnavailable, "Request timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
	default:
		g.logger.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"request_id", RequestID(r.Context()),
		)
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"details": message})
}
