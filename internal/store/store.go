// ABOUTME: Store interface and typed row records for the hub snapshot
// ABOUTME: Defines one record per snapshot table plus the read-only Store contract

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup key does not exist in the snapshot
var ErrNotFound = errors.New("not found")

// ErrIntegrity is returned when a row violates an expected invariant of the snapshot
var ErrIntegrity = errors.New("snapshot integrity defect")

// ErrUnavailable is returned when the snapshot cannot be opened or read
var ErrUnavailable = errors.New("snapshot unavailable")

// PluginRow is a row of the plugins table
type PluginRow struct {
	ID               string
	PluginType       string
	Name             string
	DefaultVariantID string
}

// Validate checks the required columns of a plugin row
func (p PluginRow) Validate() error {
	if p.ID == "" || p.PluginType == "" || p.Name == "" {
		return fmt.Errorf("%w: plugin %q missing required column", ErrIntegrity, p.ID)
	}
	return nil
}

// VariantRow is a row of the plugin_variants table joined with its plugin's type and name
type VariantRow struct {
	ID         string
	PluginID   string
	PluginType string
	PluginName string
	Name       string
	Namespace  string

	Label             sql.NullString
	Description       sql.NullString
	Executable        sql.NullString
	Docs              sql.NullString
	LogoURL           sql.NullString
	PipURL            sql.NullString
	Repo              sql.NullString
	ExtRepo           sql.NullString
	Hidden            sql.NullBool
	MaintenanceStatus sql.NullString
	Quality           sql.NullString
	DomainURL         sql.NullString
	Definition        sql.NullString
	NextSteps         sql.NullString
	SettingsPreamble  sql.NullString
	Usage             sql.NullString
	Prereq            sql.NullString

	// SupportedPythonVersions is a JSON array stored as text
	SupportedPythonVersions sql.NullString
}

// Validate checks the required columns of a variant row
func (v VariantRow) Validate() error {
	if v.ID == "" || v.PluginID == "" || v.Name == "" {
		return fmt.Errorf("%w: variant %q missing required column", ErrIntegrity, v.ID)
	}
	return nil
}

// SettingRow is a row of the settings table
type SettingRow struct {
	ID            string
	VariantID     string
	Name          string
	Label         sql.NullString
	Documentation sql.NullString
	Description   sql.NullString
	Placeholder   sql.NullString
	Env           sql.NullString
	Kind          sql.NullString
	Value         sql.NullString // JSON text
	Options       sql.NullString // JSON text
	Sensitive     sql.NullBool
}

// Validate checks the required columns of a setting row
func (s SettingRow) Validate() error {
	if s.ID == "" || s.VariantID == "" || s.Name == "" {
		return fmt.Errorf("%w: setting %q missing required column", ErrIntegrity, s.ID)
	}
	return nil
}

// SettingAliasRow binds an alternate name to a setting
type SettingAliasRow struct {
	ID        string
	SettingID string
	Name      string
}

// SettingGroupRow places a setting name in a group of a variant.
// (VariantID, GroupID, SettingName) is the primary key.
type SettingGroupRow struct {
	VariantID   string
	GroupID     int
	SettingName string
	SettingID   string
}

// NamedRow is a row of a labeled list attached to a variant (capabilities, keywords)
type NamedRow struct {
	ID        string
	VariantID string
	Name      string
}

// CommandRow is a row of the commands table
type CommandRow struct {
	ID          string
	VariantID   string
	Name        string
	Args        sql.NullString
	Description sql.NullString
	Executable  sql.NullString
}

// RequireRow is a plugin requirement of a variant
type RequireRow struct {
	ID         string
	VariantID  string
	PluginType string
	Name       string
	Variant    string
}

// SelectRow is a select expression of a variant
type SelectRow struct {
	ID         string
	VariantID  string
	Expression string
}

// MetadataRow is a metadata entry of a variant; Value is JSON or plain text
type MetadataRow struct {
	ID        string
	VariantID string
	Key       string
	Value     sql.NullString
}

// MaintainerRow is a row of the maintainers table
type MaintainerRow struct {
	ID    string
	Name  sql.NullString
	Label sql.NullString
	URL   sql.NullString
}

// Validate checks the required columns of a maintainer row
func (m MaintainerRow) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: maintainer missing id", ErrIntegrity)
	}
	return nil
}

// VariantQuery filters FindVariants. Empty fields do not filter.
type VariantQuery struct {
	PluginName  string
	PluginType  string
	VariantName string

	// DefaultOnly restricts results to each plugin's default variant
	DefaultOnly bool
}

// Store is the read-only accessor over a snapshot.
// Lookups of a single entity return ErrNotFound when the key does not exist.
type Store interface {
	// Plugins
	ListPlugins(ctx context.Context) ([]PluginRow, error)
	GetPlugin(ctx context.Context, pluginType, name string) (*PluginRow, error)
	CountPluginsByType(ctx context.Context) (map[string]int, error)

	// Variants
	GetVariant(ctx context.Context, id string) (*VariantRow, error)
	ListVariants(ctx context.Context, pluginID string) ([]VariantRow, error)
	ListAllVariants(ctx context.Context) ([]VariantRow, error)
	FindVariants(ctx context.Context, q VariantQuery) ([]VariantRow, error)
	ListVariantsWithKeyword(ctx context.Context, keyword, pluginType string, limit int) ([]VariantRow, error)

	// Variant children, keyed by variant id
	ListSettings(ctx context.Context, variantID string) ([]SettingRow, error)
	ListSettingAliases(ctx context.Context, variantID string) ([]SettingAliasRow, error)
	ListSettingGroups(ctx context.Context, variantID string) ([]SettingGroupRow, error)
	ListCapabilities(ctx context.Context, variantID string) ([]NamedRow, error)
	ListKeywords(ctx context.Context, variantID string) ([]NamedRow, error)
	ListCommands(ctx context.Context, variantID string) ([]CommandRow, error)
	ListRequires(ctx context.Context, variantID string) ([]RequireRow, error)
	ListSelects(ctx context.Context, variantID string) ([]SelectRow, error)
	ListMetadata(ctx context.Context, variantID string) ([]MetadataRow, error)

	// Maintainers
	ListMaintainers(ctx context.Context) ([]MaintainerRow, error)
	GetMaintainer(ctx context.Context, id string) (*MaintainerRow, error)

	Close() error
}

// Dataset is a complete snapshot held in memory.
// It is what the build side produces and what MemoryStore serves.
type Dataset struct {
	Plugins        []PluginRow
	Variants       []VariantRow
	Settings       []SettingRow
	SettingAliases []SettingAliasRow
	SettingGroups  []SettingGroupRow
	Capabilities   []NamedRow
	Keywords       []NamedRow
	Commands       []CommandRow
	Requires       []RequireRow
	Selects        []SelectRow
	Metadata       []MetadataRow
	Maintainers    []MaintainerRow
}

// Text returns a valid NullString holding s
func Text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// Bool returns a valid NullBool holding b
func Bool(b bool) sql.NullBool {
	return sql.NullBool{Bool: b, Valid: true}
}
