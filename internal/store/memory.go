// ABOUTME: In-memory Store implementation over a Dataset
// ABOUTME: Serves a snapshot from memory so assembler and handler tests run without SQLite

package store

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
// Rows are returned in the same order SQLiteStore returns them, and rows that
// fail validation are left out of listings and lookups the same way.
type MemoryStore struct {
	mu     sync.RWMutex
	data   Dataset
	closed bool

	plugins    map[string]*PluginRow  // keyed by "type/name"
	variants   map[string]*VariantRow // keyed by variant ID
	settingVar map[string]string      // setting ID -> variant ID
}

// validator is implemented by rows with required columns
type validator interface {
	Validate() error
}

func isValid[T validator](row T) bool {
	return row.Validate() == nil
}

// NewMemoryStore creates a MemoryStore serving a copy of data.
// Variant rows get their plugin type and name filled from the plugins table.
func NewMemoryStore(data Dataset) *MemoryStore {
	m := &MemoryStore{
		plugins:    make(map[string]*PluginRow),
		variants:   make(map[string]*VariantRow),
		settingVar: make(map[string]string),
	}

	m.data = Dataset{
		Plugins:        slices.Clone(data.Plugins),
		Variants:       slices.Clone(data.Variants),
		Settings:       slices.Clone(data.Settings),
		SettingAliases: slices.Clone(data.SettingAliases),
		SettingGroups:  slices.Clone(data.SettingGroups),
		Capabilities:   slices.Clone(data.Capabilities),
		Keywords:       slices.Clone(data.Keywords),
		Commands:       slices.Clone(data.Commands),
		Requires:       slices.Clone(data.Requires),
		Selects:        slices.Clone(data.Selects),
		Metadata:       slices.Clone(data.Metadata),
		Maintainers:    slices.Clone(data.Maintainers),
	}

	byID := make(map[string]*PluginRow)
	for i := range m.data.Plugins {
		p := &m.data.Plugins[i]
		byID[p.ID] = p
		m.plugins[p.PluginType+"/"+p.Name] = p
	}
	for i := range m.data.Variants {
		v := &m.data.Variants[i]
		if p, ok := byID[v.PluginID]; ok {
			v.PluginType = p.PluginType
			v.PluginName = p.Name
		}
		m.variants[v.ID] = v
	}
	for _, s := range m.data.Settings {
		m.settingVar[s.ID] = s.VariantID
	}

	logger := slog.Default().With("component", "store")
	warnDefects(logger, m.data.Plugins)
	warnDefects(logger, m.data.Variants)
	warnDefects(logger, m.data.Settings)
	warnDefects(logger, m.data.Maintainers)

	return m
}

func comparePlugins(a, b PluginRow) int {
	return cmp.Or(cmp.Compare(a.PluginType, b.PluginType), cmp.Compare(a.Name, b.Name))
}

func compareVariants(a, b VariantRow) int {
	return cmp.Or(
		cmp.Compare(a.PluginType, b.PluginType),
		cmp.Compare(a.PluginName, b.PluginName),
		cmp.Compare(a.Name, b.Name),
	)
}

// warnDefects logs every row of rows that fails validation
func warnDefects[T validator](logger *slog.Logger, rows []T) {
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			logger.Warn("skipping defective row", "error", err)
		}
	}
}

// filter returns the rows of items that match keep
func filter[T any](items []T, keep func(T) bool) []T {
	var out []T
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// ListPlugins returns every plugin ordered by type and name
func (m *MemoryStore) ListPlugins(ctx context.Context) ([]PluginRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	out := filter(m.data.Plugins, isValid[PluginRow])
	slices.SortFunc(out, comparePlugins)
	return out, nil
}

// GetPlugin returns the plugin with the given type and name
func (m *MemoryStore) GetPlugin(ctx context.Context, pluginType, name string) (*PluginRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	p, ok := m.plugins[pluginType+"/"+name]
	if !ok || !isValid(*p) {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// CountPluginsByType returns the number of plugins of each type
func (m *MemoryStore) CountPluginsByType(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	counts := make(map[string]int)
	for _, p := range m.data.Plugins {
		if isValid(p) {
			counts[p.PluginType]++
		}
	}
	return counts, nil
}

// GetVariant returns a variant by id
func (m *MemoryStore) GetVariant(ctx context.Context, id string) (*VariantRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	v, ok := m.variants[id]
	if !ok || !isValid(*v) {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// ListVariants returns the variants of a plugin ordered by name
func (m *MemoryStore) ListVariants(ctx context.Context, pluginID string) ([]VariantRow, error) {
	return m.FindVariantsWhere(func(v VariantRow) bool { return v.PluginID == pluginID })
}

// ListAllVariants returns every variant
func (m *MemoryStore) ListAllVariants(ctx context.Context) ([]VariantRow, error) {
	return m.FindVariantsWhere(func(VariantRow) bool { return true })
}

// FindVariants returns the variants matching q
func (m *MemoryStore) FindVariants(ctx context.Context, q VariantQuery) ([]VariantRow, error) {
	m.mu.RLock()
	defaults := make(map[string]bool, len(m.data.Plugins))
	for _, p := range m.data.Plugins {
		defaults[p.DefaultVariantID] = true
	}
	m.mu.RUnlock()

	return m.FindVariantsWhere(func(v VariantRow) bool {
		if q.PluginName != "" && v.PluginName != q.PluginName {
			return false
		}
		if q.PluginType != "" && v.PluginType != q.PluginType {
			return false
		}
		if q.VariantName != "" && v.Name != q.VariantName {
			return false
		}
		if q.DefaultOnly && !defaults[v.ID] {
			return false
		}
		return true
	})
}

// ListVariantsWithKeyword returns variants tagged with keyword
func (m *MemoryStore) ListVariantsWithKeyword(ctx context.Context, keyword, pluginType string, limit int) ([]VariantRow, error) {
	m.mu.RLock()
	tagged := make(map[string]bool)
	for _, k := range m.data.Keywords {
		if k.Name == keyword {
			tagged[k.VariantID] = true
		}
	}
	m.mu.RUnlock()

	out, err := m.FindVariantsWhere(func(v VariantRow) bool {
		return tagged[v.ID] && (pluginType == "" || v.PluginType == pluginType)
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindVariantsWhere returns the variants accepted by keep in index order.
// Variants whose plugin is missing are still returned, with an empty plugin type.
func (m *MemoryStore) FindVariantsWhere(keep func(VariantRow) bool) ([]VariantRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	out := filter(m.data.Variants, func(v VariantRow) bool { return isValid(v) && keep(v) })
	slices.SortFunc(out, compareVariants)
	return out, nil
}

// ListSettings returns the settings of a variant
func (m *MemoryStore) ListSettings(ctx context.Context, variantID string) ([]SettingRow, error) {
	return childRows(m, m.data.Settings, func(s SettingRow) bool { return s.VariantID == variantID && isValid(s) },
		func(a, b SettingRow) int { return cmp.Compare(a.Name, b.Name) })
}

// ListSettingAliases returns the aliases of every setting of a variant
func (m *MemoryStore) ListSettingAliases(ctx context.Context, variantID string) ([]SettingAliasRow, error) {
	return childRows(m, m.data.SettingAliases, func(a SettingAliasRow) bool { return m.settingVar[a.SettingID] == variantID },
		func(a, b SettingAliasRow) int {
			return cmp.Or(cmp.Compare(a.SettingID, b.SettingID), cmp.Compare(a.Name, b.Name))
		})
}

// ListSettingGroups returns the setting group memberships of a variant
func (m *MemoryStore) ListSettingGroups(ctx context.Context, variantID string) ([]SettingGroupRow, error) {
	return childRows(m, m.data.SettingGroups, func(g SettingGroupRow) bool { return g.VariantID == variantID },
		func(a, b SettingGroupRow) int {
			return cmp.Or(cmp.Compare(a.GroupID, b.GroupID), cmp.Compare(a.SettingName, b.SettingName))
		})
}

// ListCapabilities returns the capabilities of a variant
func (m *MemoryStore) ListCapabilities(ctx context.Context, variantID string) ([]NamedRow, error) {
	return childRows(m, m.data.Capabilities, func(n NamedRow) bool { return n.VariantID == variantID }, compareNamed)
}

// ListKeywords returns the keywords of a variant
func (m *MemoryStore) ListKeywords(ctx context.Context, variantID string) ([]NamedRow, error) {
	return childRows(m, m.data.Keywords, func(n NamedRow) bool { return n.VariantID == variantID }, compareNamed)
}

// ListCommands returns the commands of a variant
func (m *MemoryStore) ListCommands(ctx context.Context, variantID string) ([]CommandRow, error) {
	return childRows(m, m.data.Commands, func(c CommandRow) bool { return c.VariantID == variantID },
		func(a, b CommandRow) int { return cmp.Compare(a.Name, b.Name) })
}

// ListRequires returns the plugin requirements of a variant
func (m *MemoryStore) ListRequires(ctx context.Context, variantID string) ([]RequireRow, error) {
	return childRows(m, m.data.Requires, func(r RequireRow) bool { return r.VariantID == variantID },
		func(a, b RequireRow) int {
			return cmp.Or(
				cmp.Compare(a.PluginType, b.PluginType),
				cmp.Compare(a.Name, b.Name),
				cmp.Compare(a.Variant, b.Variant),
			)
		})
}

// ListSelects returns the select expressions of a variant
func (m *MemoryStore) ListSelects(ctx context.Context, variantID string) ([]SelectRow, error) {
	return childRows(m, m.data.Selects, func(s SelectRow) bool { return s.VariantID == variantID },
		func(a, b SelectRow) int { return cmp.Compare(a.Expression, b.Expression) })
}

// ListMetadata returns the metadata entries of a variant
func (m *MemoryStore) ListMetadata(ctx context.Context, variantID string) ([]MetadataRow, error) {
	return childRows(m, m.data.Metadata, func(e MetadataRow) bool { return e.VariantID == variantID },
		func(a, b MetadataRow) int { return cmp.Compare(a.Key, b.Key) })
}

// ListMaintainers returns every maintainer ordered by id
func (m *MemoryStore) ListMaintainers(ctx context.Context) ([]MaintainerRow, error) {
	return childRows(m, m.data.Maintainers, isValid[MaintainerRow],
		func(a, b MaintainerRow) int { return cmp.Compare(a.ID, b.ID) })
}

// GetMaintainer returns a maintainer by id
func (m *MemoryStore) GetMaintainer(ctx context.Context, id string) (*MaintainerRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	for _, mt := range m.data.Maintainers {
		if mt.ID == id && isValid(mt) {
			cp := mt
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Close marks the store closed; later calls return ErrUnavailable
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func compareNamed(a, b NamedRow) int {
	return cmp.Compare(a.Name, b.Name)
}

// childRows filters and sorts a child table under the read lock
func childRows[T any](m *MemoryStore, rows []T, keep func(T) bool, order func(a, b T) int) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrUnavailable
	}

	out := filter(rows, keep)
	slices.SortFunc(out, order)
	return out, nil
}
