// ABOUTME: Document Assembler building hub documents from snapshot rows
// ABOUTME: Builds index and maintainer documents and skips plugins that violate snapshot invariants

package hub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/2389/hub-gateway/internal/store"
)

// DefaultHubURL is the public hub site used for docs and logo links
const DefaultHubURL = "https://hub.meltano.com"

// SDKKeyword tags variants built with the Meltano SDK
const SDKKeyword = "meltano_sdk"

// Options configures an Assembler
type Options struct {
	// BaseURL is the externally visible URL of this API, used in refs
	BaseURL string
	// HubURL is the hub site used for docs and logo links
	HubURL string
	Logger *slog.Logger
}

// Assembler turns snapshot rows into hub documents.
// It holds no mutable state and is safe for concurrent use.
type Assembler struct {
	store   store.Store
	baseURL string
	hubURL  string
	logger  *slog.Logger
}

// New creates an Assembler reading from s
func New(s store.Store, opts Options) *Assembler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hubURL := opts.HubURL
	if hubURL == "" {
		hubURL = DefaultHubURL
	}
	baseURL := opts.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Assembler{
		store:   s,
		baseURL: baseURL,
		hubURL:  strings.TrimRight(hubURL, "/"),
		logger:  logger.With("component", "assembler"),
	}
}

// VariantKey identifies one variant of one plugin
type VariantKey struct {
	PluginType PluginType
	Plugin     string
	Variant    string
}

// String returns the key as type/plugin/variant
func (k VariantKey) String() string {
	return string(k.PluginType) + "/" + k.Plugin + "/" + k.Variant
}

// variantRef builds the API link of a variant
func (a *Assembler) variantRef(pluginType PluginType, plugin, variant string) string {
	return fmt.Sprintf("%smeltano/api/v1/plugins/%s/%s--%s", a.baseURL, pluginType, plugin, variant)
}

// hubLink resolves ref against the hub site; absolute URLs are returned as is
func (a *Assembler) hubLink(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return a.hubURL + "/" + strings.TrimLeft(ref, "/")
}

// PluginIndex returns every plugin grouped by type and name
func (a *Assembler) PluginIndex(ctx context.Context) (PluginIndex, error) {
	plugins, err := a.store.ListPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing plugins: %w", err)
	}
	variants, err := a.store.ListAllVariants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}

	index := make(PluginIndex, len(PluginTypes))
	for _, pt := range PluginTypes {
		index[pt] = PluginTypeIndex{}
	}

	byPlugin := groupVariants(variants)
	for _, p := range plugins {
		pt := PluginType(p.PluginType)
		if !pt.Valid() {
			a.logger.Warn("skipping plugin with unknown type", "plugin_id", p.ID, "plugin_type", p.PluginType)
			continue
		}
		ref, ok := a.pluginRef(p, byPlugin[p.ID])
		if !ok {
			continue
		}
		index[pt][p.Name] = ref
	}
	return index, nil
}

// PluginTypeIndex returns the plugins of one type keyed by name
func (a *Assembler) PluginTypeIndex(ctx context.Context, pluginType PluginType) (PluginTypeIndex, error) {
	if !pluginType.Valid() {
		_, err := ParsePluginType(string(pluginType))
		return nil, err
	}

	plugins, err := a.store.ListPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing plugins: %w", err)
	}
	variants, err := a.store.FindVariants(ctx, store.VariantQuery{PluginType: string(pluginType)})
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}

	index := PluginTypeIndex{}
	byPlugin := groupVariants(variants)
	for _, p := range plugins {
		if PluginType(p.PluginType) != pluginType {
			continue
		}
		if ref, ok := a.pluginRef(p, byPlugin[p.ID]); ok {
			index[p.Name] = ref
		}
	}
	return index, nil
}

func groupVariants(variants []store.VariantRow) map[string][]store.VariantRow {
	byPlugin := make(map[string][]store.VariantRow)
	for _, v := range variants {
		byPlugin[v.PluginID] = append(byPlugin[v.PluginID], v)
	}
	return byPlugin
}

// defaultOf returns the variant among variants that p names as its default
func defaultOf(p store.PluginRow, variants []store.VariantRow) (store.VariantRow, bool) {
	for _, v := range variants {
		if v.ID == p.DefaultVariantID {
			return v, true
		}
	}
	return store.VariantRow{}, false
}

// pluginRef summarizes p, or reports false when p violates the snapshot invariants
func (a *Assembler) pluginRef(p store.PluginRow, variants []store.VariantRow) (*PluginRef, bool) {
	if len(variants) == 0 {
		a.logger.Warn("skipping plugin without variants", "plugin_id", p.ID)
		return nil, false
	}
	def, ok := defaultOf(p, variants)
	if !ok {
		a.logger.Warn("skipping plugin with unresolvable default variant",
			"plugin_id", p.ID, "default_variant_id", p.DefaultVariantID)
		return nil, false
	}

	ref := &PluginRef{
		DefaultVariant: def.Name,
		Variants:       make(map[string]VariantRef, len(variants)),
	}
	if def.LogoURL.Valid && def.LogoURL.String != "" {
		ref.LogoURL = a.hubLink(def.LogoURL.String)
	}
	for _, v := range variants {
		ref.Variants[v.Name] = VariantRef{Ref: a.variantRef(PluginType(p.PluginType), p.Name, v.Name)}
	}
	return ref, true
}

// getPlugin looks up a plugin and maps absence to NotFoundError
func (a *Assembler) getPlugin(ctx context.Context, pluginType PluginType, name string) (*store.PluginRow, error) {
	if !pluginType.Valid() {
		_, err := ParsePluginType(string(pluginType))
		return nil, err
	}
	p, err := a.store.GetPlugin(ctx, string(pluginType), name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pluginNotFound(name, pluginType)
	}
	if err != nil {
		return nil, fmt.Errorf("getting plugin: %w", err)
	}
	return p, nil
}

// Plugin returns a plugin with the full document of every variant
func (a *Assembler) Plugin(ctx context.Context, pluginType PluginType, name string, level Level) (*PluginDocument, error) {
	p, err := a.getPlugin(ctx, pluginType, name)
	if err != nil {
		return nil, err
	}

	variants, err := a.store.ListVariants(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	ref, ok := a.pluginRef(*p, variants)
	if !ok {
		return nil, pluginNotFound(name, pluginType)
	}

	doc := &PluginDocument{
		Name:           p.Name,
		PluginType:     pluginType,
		DefaultVariant: ref.DefaultVariant,
		LogoURL:        ref.LogoURL,
		Variants:       make(map[string]*VariantDocument, len(variants)),
	}
	for _, v := range variants {
		vd, err := a.variantDocument(ctx, v, level)
		if err != nil {
			return nil, err
		}
		doc.Variants[v.Name] = vd
	}
	return doc, nil
}

// DefaultVariant returns the document of a plugin's default variant
func (a *Assembler) DefaultVariant(ctx context.Context, pluginType PluginType, name string, level Level) (*VariantDocument, error) {
	p, err := a.getPlugin(ctx, pluginType, name)
	if err != nil {
		return nil, err
	}

	v, err := a.store.GetVariant(ctx, p.DefaultVariantID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && v.PluginID != p.ID) {
		a.logger.Warn("plugin default variant does not resolve",
			"plugin_id", p.ID, "default_variant_id", p.DefaultVariantID)
		return nil, pluginNotFound(name, pluginType)
	}
	if err != nil {
		return nil, fmt.Errorf("getting default variant: %w", err)
	}
	return a.variantDocument(ctx, *v, level)
}

// Variant returns the document of one named variant
func (a *Assembler) Variant(ctx context.Context, key VariantKey, level Level) (*VariantDocument, error) {
	if !key.PluginType.Valid() {
		_, err := ParsePluginType(string(key.PluginType))
		return nil, err
	}

	variants, err := a.store.FindVariants(ctx, store.VariantQuery{
		PluginName:  key.Plugin,
		PluginType:  string(key.PluginType),
		VariantName: key.Variant,
	})
	if err != nil {
		return nil, fmt.Errorf("finding variant: %w", err)
	}
	if len(variants) == 0 {
		return nil, variantNotFound(key.Plugin, key.Variant, key.PluginType)
	}
	return a.variantDocument(ctx, variants[0], level)
}

// SearchQuery selects a variant by plugin name with optional filters.
// Without a variant name the plugin's default variant is chosen.
type SearchQuery struct {
	Name       string
	PluginType PluginType
	Variant    string
}

// Resolve finds the single variant matching q.
// More than one match is a BadRequestError listing the candidates.
func (a *Assembler) Resolve(ctx context.Context, q SearchQuery) (VariantKey, error) {
	if q.Name == "" {
		return VariantKey{}, &BadRequestError{Message: "query parameter 'name' is required"}
	}
	if q.PluginType != "" && !q.PluginType.Valid() {
		_, err := ParsePluginType(string(q.PluginType))
		return VariantKey{}, err
	}

	variants, err := a.store.FindVariants(ctx, store.VariantQuery{
		PluginName:  q.Name,
		PluginType:  string(q.PluginType),
		VariantName: q.Variant,
		DefaultOnly: q.Variant == "",
	})
	if err != nil {
		return VariantKey{}, fmt.Errorf("searching variants: %w", err)
	}

	switch len(variants) {
	case 0:
		if q.Variant != "" {
			return VariantKey{}, variantNotFound(q.Name, q.Variant, q.PluginType)
		}
		return VariantKey{}, pluginNotFound(q.Name, q.PluginType)
	case 1:
		v := variants[0]
		return VariantKey{PluginType: PluginType(v.PluginType), Plugin: v.PluginName, Variant: v.Name}, nil
	default:
		names := make([]string, len(variants))
		for i, v := range variants {
			names[i] = fmt.Sprintf("%s (%s)", v.PluginName, v.PluginType)
		}
		return VariantKey{}, &BadRequestError{
			Message: "More than one plugin found for the given criteria: " + strings.Join(names, ", "),
		}
	}
}

// Search resolves q and returns the matching variant document
func (a *Assembler) Search(ctx context.Context, q SearchQuery, level Level) (*VariantDocument, error) {
	key, err := a.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	return a.Variant(ctx, key, level)
}

// SDKPlugins lists variants tagged as built with the SDK.
// An empty pluginType lists every type.
func (a *Assembler) SDKPlugins(ctx context.Context, pluginType PluginType, limit int) ([]PluginListElement, error) {
	if pluginType != "" && !pluginType.Valid() {
		_, err := ParsePluginType(string(pluginType))
		return nil, err
	}
	if limit < 1 {
		return nil, &BadRequestError{Message: "limit must be a positive integer"}
	}

	variants, err := a.store.ListVariantsWithKeyword(ctx, SDKKeyword, string(pluginType), limit)
	if err != nil {
		return nil, fmt.Errorf("listing sdk plugins: %w", err)
	}

	out := make([]PluginListElement, 0, len(variants))
	for _, v := range variants {
		pt := PluginType(v.PluginType)
		out = append(out, PluginListElement{
			Plugin:     v.PluginName,
			Variant:    v.Name,
			PluginType: pt,
			Ref:        a.variantRef(pt, v.PluginName, v.Name),
		})
	}
	return out, nil
}

// Stats counts plugins per known type
func (a *Assembler) Stats(ctx context.Context) (Stats, error) {
	counts, err := a.store.CountPluginsByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting plugins: %w", err)
	}

	stats := make(Stats, len(counts))
	for pt, n := range counts {
		if PluginType(pt).Valid() {
			stats[PluginType(pt)] = n
		}
	}
	return stats, nil
}

// Maintainers lists every maintainer
func (a *Assembler) Maintainers(ctx context.Context) (*MaintainerList, error) {
	rows, err := a.store.ListMaintainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing maintainers: %w", err)
	}

	list := &MaintainerList{Maintainers: make([]Maintainer, 0, len(rows))}
	for _, m := range rows {
		list.Maintainers = append(list.Maintainers, Maintainer{
			ID:    m.ID,
			Name:  m.Name.String,
			Label: m.Label.String,
			URL:   m.URL.String,
			Links: MaintainerLinks{Details: "/meltano/v1/maintainers/" + m.ID},
		})
	}
	return list, nil
}

// maintainedVariants returns the variants associated with a maintainer.
// A variant belongs to the maintainer whose id equals the variant name.
func (a *Assembler) maintainedVariants(ctx context.Context, id string) ([]store.VariantRow, error) {
	variants, err := a.store.FindVariants(ctx, store.VariantQuery{VariantName: id})
	if err != nil {
		return nil, fmt.Errorf("finding maintained variants: %w", err)
	}
	return variants, nil
}

// Maintainer returns one maintainer with a link to each plugin they maintain
func (a *Assembler) Maintainer(ctx context.Context, id string) (*MaintainerDetails, error) {
	m, err := a.store.GetMaintainer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, maintainerNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting maintainer: %w", err)
	}

	variants, err := a.maintainedVariants(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &MaintainerDetails{
		ID:    m.ID,
		Label: m.Label.String,
		URL:   m.URL.String,
		Links: make(map[string]string, len(variants)),
	}
	for _, v := range variants {
		details.Links[v.PluginName] = a.variantRef(PluginType(v.PluginType), v.PluginName, v.Name)
	}
	return details, nil
}

// MaxTopMaintainers bounds the count accepted by TopMaintainers (exclusive)
const MaxTopMaintainers = 50

// TopMaintainers returns the n maintainers with the most variants, most first.
// Ties are broken by maintainer id.
func (a *Assembler) TopMaintainers(ctx context.Context, n int) ([]MaintainerPluginCount, error) {
	if n < 1 || n >= MaxTopMaintainers {
		return nil, &BadRequestError{
			Message: fmt.Sprintf("count must be between 1 and %d", MaxTopMaintainers-1),
		}
	}

	rows, err := a.store.ListMaintainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing maintainers: %w", err)
	}

	var ranked []MaintainerPluginCount
	for _, m := range rows {
		variants, err := a.maintainedVariants(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if len(variants) == 0 {
			continue
		}
		ranked = append(ranked, MaintainerPluginCount{
			ID:          m.ID,
			Label:       m.Label.String,
			URL:         m.URL.String,
			PluginCount: len(variants),
		})
	}

	slices.SortFunc(ranked, func(x, y MaintainerPluginCount) int {
		return cmp.Or(cmp.Compare(y.PluginCount, x.PluginCount), cmp.Compare(x.ID, y.ID))
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	if ranked == nil {
		ranked = []MaintainerPluginCount{}
	}
	return ranked, nil
}
