// Package store provides read-only access to a hub snapshot.
//
// # Architecture
//
// A snapshot is a SQLite file produced out of band (see package snapshot).
// It is opened once and never written while it is served. The Store
// interface exposes one method per lookup the document assembler needs:
//
//   - Plugins: ListPlugins, GetPlugin, CountPluginsByType
//   - Variants: GetVariant, ListVariants, ListAllVariants, FindVariants,
//     ListVariantsWithKeyword
//   - Variant children: ListSettings, ListSettingAliases, ListSettingGroups,
//     ListCapabilities, ListKeywords, ListCommands, ListRequires, ListSelects,
//     ListMetadata
//   - Maintainers: ListMaintainers, GetMaintainer
//
// Every per-request lookup is keyed by an indexed column. Only the full
// listings scan whole tables.
//
// # Data Models
//
// Each table has a typed row record (PluginRow, VariantRow, SettingRow, ...).
// Nullable text columns are sql.NullString. Required columns are checked when
// a row is scanned. A row that fails the check is logged and left out of
// listings, and a direct lookup of it returns ErrNotFound, so one defective
// row never fails a whole request.
//
// # SQLite Configuration
//
// SQLiteStore opens the file with mode=ro and query_only, using either
// modernc.org/sqlite (driver "sqlite", the default) or
// github.com/mattn/go-sqlite3 (driver "sqlite3").
//
// # Error Handling
//
//   - ErrNotFound: the lookup key does not exist in the snapshot
//   - ErrIntegrity: a row is missing a required column (logged, never returned
//     from a listing)
//   - ErrUnavailable: the snapshot cannot be opened, has missing tables, or
//     the store was closed
//
// # Testing
//
// Use NewMemoryStore with a Dataset for unit tests:
//
//	s := store.NewMemoryStore(store.Dataset{Plugins: ..., Variants: ...})
//
// Integration tests write a Dataset with snapshot.Write and open it with
// OpenSQLite.
package store
