// Package hub assembles hub API documents from a snapshot Store.
//
// # Documents
//
// The Assembler builds every document the API serves:
//
//   - PluginIndex and PluginTypeIndex: plugins grouped by type then name,
//     with a ref to each variant
//   - PluginDocument: one plugin with the full document of every variant
//   - VariantDocument: one variant with settings, setting groups, and every
//     child list (capabilities, keywords, commands, requires, select, metadata)
//   - MaintainerList, MaintainerDetails, MaintainerPluginCount
//   - PluginListElement listings and Stats
//
// # Determinism
//
// Assembling the same resource from the same snapshot yields byte-identical
// JSON. Child lists are sorted by their natural key and maps are serialized
// by encoding/json with sorted keys. Fingerprints depend on this.
//
// # Integrity Defects
//
// A plugin with no variants, or whose default_variant_id does not name one
// of its variants, is logged at Warn and left out of the index. A direct
// lookup of such a plugin returns a NotFoundError.
//
// # Maintainers
//
// The snapshot does not link maintainers to plugins. A variant is attributed
// to the maintainer whose id equals the variant name, resolved at request
// time through the indexed plugin_variants.name column.
//
// # Compatibility
//
// LevelForUserAgent maps a "Meltano/x.y" User-Agent to a Level. Clients
// before 3.9 see decimal settings as integer, and clients before 3.3 do not
// see the sensitive flag.
package hub
