// ABOUTME: JSON document shapes served by the hub API
// ABOUTME: Maps are serialized with sorted keys and slices are pre-sorted, so output is deterministic

package hub

import "encoding/json"

// VariantRef points at a variant document
type VariantRef struct {
	Ref string `json:"ref"`
}

// PluginRef summarizes a plugin in the index
type PluginRef struct {
	DefaultVariant string                `json:"default_variant"`
	LogoURL        string                `json:"logo_url,omitempty"`
	Variants       map[string]VariantRef `json:"variants"`
}

// PluginTypeIndex maps plugin name to its summary
type PluginTypeIndex map[string]*PluginRef

// PluginIndex maps plugin type to its type index.
// Every known plugin type is present, even when it has no plugins.
type PluginIndex map[PluginType]PluginTypeIndex

// Setting is one setting of a variant
type Setting struct {
	Name          string          `json:"name"`
	Aliases       []string        `json:"aliases,omitempty"`
	Label         string          `json:"label,omitempty"`
	Documentation string          `json:"documentation,omitempty"`
	Description   string          `json:"description,omitempty"`
	Placeholder   string          `json:"placeholder,omitempty"`
	Env           string          `json:"env,omitempty"`
	Kind          string          `json:"kind,omitempty"`
	Value         json.RawMessage `json:"value,omitempty"`
	Options       json.RawMessage `json:"options,omitempty"`
	Sensitive     *bool           `json:"sensitive,omitempty"`
}

// Command is a named command a variant exposes
type Command struct {
	Args        string `json:"args"`
	Description string `json:"description,omitempty"`
	Executable  string `json:"executable,omitempty"`
}

// Require names a plugin variant another variant depends on
type Require struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
}

// VariantDocument is the full description of one plugin variant
type VariantDocument struct {
	Name                    string          `json:"name"`
	Namespace               string          `json:"namespace"`
	Variant                 string          `json:"variant"`
	Label                   string          `json:"label,omitempty"`
	Description             string          `json:"description,omitempty"`
	Docs                    string          `json:"docs,omitempty"`
	LogoURL                 string          `json:"logo_url,omitempty"`
	PipURL                  string          `json:"pip_url,omitempty"`
	Executable              string          `json:"executable,omitempty"`
	Repo                    string          `json:"repo,omitempty"`
	ExtRepo                 string          `json:"ext_repo,omitempty"`
	Hidden                  *bool           `json:"hidden,omitempty"`
	MaintenanceStatus       string          `json:"maintenance_status,omitempty"`
	Quality                 string          `json:"quality,omitempty"`
	DomainURL               string          `json:"domain_url,omitempty"`
	Definition              string          `json:"definition,omitempty"`
	NextSteps               string          `json:"next_steps,omitempty"`
	SettingsPreamble        string          `json:"settings_preamble,omitempty"`
	Usage                   string          `json:"usage,omitempty"`
	Prereq                  string          `json:"prereq,omitempty"`
	SupportedPythonVersions json.RawMessage `json:"supported_python_versions,omitempty"`

	Settings                []Setting  `json:"settings"`
	SettingsGroupValidation [][]string `json:"settings_group_validation"`
	UngroupedSettings       []string   `json:"ungrouped_settings,omitempty"`

	Capabilities []string                   `json:"capabilities,omitempty"`
	Keywords     []string                   `json:"keywords,omitempty"`
	Commands     map[string]Command         `json:"commands,omitempty"`
	Requires     map[string][]Require       `json:"requires,omitempty"`
	Select       []string                   `json:"select,omitempty"`
	Metadata     map[string]json.RawMessage `json:"metadata,omitempty"`
}

// PluginDocument is a plugin with the full document of every variant
type PluginDocument struct {
	Name           string                      `json:"name"`
	PluginType     PluginType                  `json:"plugin_type"`
	DefaultVariant string                      `json:"default_variant"`
	LogoURL        string                      `json:"logo_url,omitempty"`
	Variants       map[string]*VariantDocument `json:"variants"`
}

// PluginListElement is one entry of a flat plugin listing
type PluginListElement struct {
	Plugin     string     `json:"plugin"`
	Variant    string     `json:"variant"`
	PluginType PluginType `json:"plugin_type"`
	Ref        string     `json:"ref"`
}

// Stats counts plugins per type
type Stats map[PluginType]int

// MaintainerLinks holds the links of a maintainer summary
type MaintainerLinks struct {
	Details string `json:"details"`
}

// Maintainer is a maintainer summary
type Maintainer struct {
	ID    string          `json:"id"`
	Name  string          `json:"name,omitempty"`
	Label string          `json:"label,omitempty"`
	URL   string          `json:"url,omitempty"`
	Links MaintainerLinks `json:"links"`
}

// MaintainerList is the list of every maintainer
type MaintainerList struct {
	Maintainers []Maintainer `json:"maintainers"`
}

// MaintainerDetails is a maintainer with a link to each plugin they maintain
type MaintainerDetails struct {
	ID    string            `json:"id"`
	Label string            `json:"label,omitempty"`
	URL   string            `json:"url,omitempty"`
	Links map[string]string `json:"links"`
}

// MaintainerPluginCount is a maintainer ranked by how many variants they maintain
type MaintainerPluginCount struct {
	ID          string `json:"id"`
	Label       string `json:"label,omitempty"`
	URL         string `json:"url,omitempty"`
	PluginCount int    `json:"plugin_count"`
}
