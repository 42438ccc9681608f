// ABOUTME: Plugin types served by the hub and setting kinds a variant may declare
// ABOUTME: Parsing an unknown plugin type yields a BadRequestError

package hub

import (
	"fmt"
	"slices"
)

// PluginType is the category a plugin belongs to
type PluginType string

// Plugin types, in index order
const (
	Extractors    PluginType = "extractors"
	Loaders       PluginType = "loaders"
	Transformers  PluginType = "transformers"
	Orchestrators PluginType = "orchestrators"
	Transforms    PluginType = "transforms"
	Utilities     PluginType = "utilities"
	Mappers       PluginType = "mappers"
	Files         PluginType = "files"
)

// PluginTypes lists every known plugin type
var PluginTypes = []PluginType{
	Extractors,
	Loaders,
	Transformers,
	Orchestrators,
	Transforms,
	Utilities,
	Mappers,
	Files,
}

// ParsePluginType validates s as a plugin type
func ParsePluginType(s string) (PluginType, error) {
	pt := PluginType(s)
	if !pt.Valid() {
		return "", &BadRequestError{Message: fmt.Sprintf("'%s' is not a valid plugin type", s)}
	}
	return pt, nil
}

// Valid reports whether pt is a known plugin type
func (pt PluginType) Valid() bool {
	return slices.Contains(PluginTypes, pt)
}

// SettingKinds lists the kinds a setting may declare; an empty kind means string
var SettingKinds = []string{
	"string",
	"integer",
	"decimal",
	"boolean",
	"date_iso8601",
	"email",
	"password",
	"oauth",
	"options",
	"file",
	"array",
	"object",
	"hidden",
}
