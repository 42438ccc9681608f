// Package snapshot builds the read-only SQLite files served by the gateway.
//
// LoadHubTree turns a hub data checkout (default_variants.yml,
// maintainers.yml, meltano/<type>/<plugin>/<variant>.yml) into a
// store.Dataset. Variant files that fail validation are left out and
// described in the Report. Write stores a dataset with store.Schema and
// renames it over the target, so a watching gateway only ever sees complete
// snapshots.
package snapshot
