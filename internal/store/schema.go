// ABOUTME: SQL schema of the hub snapshot shared by the reader and the builder
// ABOUTME: Lists the required tables checked when a snapshot is opened

package store

// Schema creates every snapshot table and the indexes the read path relies on.
// Every per-request lookup is keyed by an indexed column.
const Schema = `
	CREATE TABLE IF NOT EXISTS plugins (
		id                 TEXT PRIMARY KEY,
		plugin_type        TEXT NOT NULL,
		name               TEXT NOT NULL,
		default_variant_id TEXT NOT NULL,

		UNIQUE (plugin_type, name)
	);

	CREATE TABLE IF NOT EXISTS plugin_variants (
		id                        TEXT PRIMARY KEY,
		plugin_id                 TEXT NOT NULL REFERENCES plugins(id),
		name                      TEXT NOT NULL,
		namespace                 TEXT NOT NULL,
		label                     TEXT,
		description               TEXT,
		executable                TEXT,
		docs                      TEXT,
		logo_url                  TEXT,
		pip_url                   TEXT,
		repo                      TEXT,
		ext_repo                  TEXT,
		hidden                    BOOLEAN,
		maintenance_status        TEXT,
		quality                   TEXT,
		domain_url                TEXT,
		definition                TEXT,
		next_steps                TEXT,
		settings_preamble         TEXT,
		usage                     TEXT,
		prereq                    TEXT,
		supported_python_versions TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_variants_plugin ON plugin_variants(plugin_id);
	CREATE INDEX IF NOT EXISTS idx_variants_name ON plugin_variants(name);

	CREATE TABLE IF NOT EXISTS settings (
		id            TEXT PRIMARY KEY,
		variant_id    TEXT NOT NULL REFERENCES plugin_variants(id),
		name          TEXT NOT NULL,
		label         TEXT,
		documentation TEXT,
		description   TEXT,
		placeholder   TEXT,
		env           TEXT,
		kind          TEXT,
		value         TEXT,
		options       TEXT,
		sensitive     BOOLEAN
	);

	CREATE INDEX IF NOT EXISTS idx_settings_variant ON settings(variant_id);

	CREATE TABLE IF NOT EXISTS setting_aliases (
		id         TEXT PRIMARY KEY,
		setting_id TEXT NOT NULL REFERENCES settings(id),
		name       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_setting_aliases_setting ON setting_aliases(setting_id);

	CREATE TABLE IF NOT EXISTS setting_groups (
		variant_id   TEXT NOT NULL REFERENCES plugin_variants(id),
		group_id     INTEGER NOT NULL,
		setting_name TEXT NOT NULL,
		setting_id   TEXT NOT NULL,

		PRIMARY KEY (variant_id, group_id, setting_name)
	);

	CREATE TABLE IF NOT EXISTS capabilities (
		id         TEXT PRIMARY KEY,
		variant_id TEXT NOT NULL REFERENCES plugin_variants(id),
		name       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_capabilities_variant ON capabilities(variant_id);

	CREATE TABLE IF NOT EXISTS keywords (
		id         TEXT PRIMARY KEY,
		variant_id TEXT NOT NULL REFERENCES plugin_variants(id),
		name       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_keywords_variant ON keywords(variant_id);
	CREATE INDEX IF NOT EXISTS idx_keywords_name ON keywords(name);

	CREATE TABLE IF NOT EXISTS commands (
		id          TEXT PRIMARY KEY,
		variant_id  TEXT NOT NULL REFERENCES plugin_variants(id),
		name        TEXT NOT NULL,
		args        TEXT,
		description TEXT,
		executable  TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_commands_variant ON commands(variant_id);

	CREATE TABLE IF NOT EXISTS requires (
		id          TEXT PRIMARY KEY,
		variant_id  TEXT NOT NULL REFERENCES plugin_variants(id),
		plugin_type TEXT NOT NULL,
		name        TEXT NOT NULL,
		variant     TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requires_variant ON requires(variant_id);

	CREATE TABLE IF NOT EXISTS selects (
		id         TEXT PRIMARY KEY,
		variant_id TEXT NOT NULL REFERENCES plugin_variants(id),
		expression TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_selects_variant ON selects(variant_id);

	CREATE TABLE IF NOT EXISTS metadata (
		id         TEXT PRIMARY KEY,
		variant_id TEXT NOT NULL REFERENCES plugin_variants(id),
		key        TEXT NOT NULL,
		value      TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_metadata_variant ON metadata(variant_id);

	CREATE TABLE IF NOT EXISTS maintainers (
		id    TEXT PRIMARY KEY,
		name  TEXT,
		label TEXT,
		url   TEXT
	);
`

// requiredTables must all exist for a snapshot to be served
var requiredTables = []string{
	"plugins",
	"plugin_variants",
	"settings",
	"setting_aliases",
	"setting_groups",
	"capabilities",
	"keywords",
	"commands",
	"requires",
	"selects",
	"metadata",
	"maintainers",
}
