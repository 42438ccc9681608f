// ABOUTME: Read-only SQLite implementation of the Store interface
// ABOUTME: Opens a snapshot file once, verifies its schema, and serves indexed lookups

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by OpenSQLite
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3
)

// SQLiteStore implements the Store interface over a read-only SQLite snapshot
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens the snapshot at path read-only.
// The file must exist and contain every snapshot table; otherwise the returned
// error wraps ErrUnavailable.
func OpenSQLite(ctx context.Context, driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver == "" {
		driver = DriverModernc
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	dsn, err := readOnlyDSN(driver, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", ErrUnavailable, err)
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := s.verifySchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	logger.Info("SQLite snapshot opened", "path", path, "driver", driver)
	return s, nil
}

// readOnlyDSN builds a connection string that opens the file read-only and
// rejects writes on every pooled connection.
func readOnlyDSN(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		return "file:" + path + "?mode=ro&_pragma=query_only(1)", nil
	case DriverCGO:
		return "file:" + path + "?mode=ro&_query_only=1", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// verifySchema checks that the snapshot is readable and has every required table
func (s *SQLiteStore) verifySchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("listing tables: %w", err)
	}

	var missing []string
	for _, table := range requiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("snapshot is missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Path returns the snapshot file the store was opened from
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite snapshot", "path", s.path)
	return s.db.Close()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// queryAll runs query and scans every row with scan.
// Rows that fail with ErrIntegrity are logged and left out of the result.
func queryAll[T any](ctx context.Context, s *SQLiteStore, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if errors.Is(err, ErrIntegrity) {
			s.logger.Warn("skipping defective row", "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// lookupErr maps the error of a single-row lookup onto the Store contract.
// A defective row is logged and treated as absent.
func (s *SQLiteStore) lookupErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, ErrIntegrity):
		s.logger.Warn("ignoring defective row", "error", err)
		return ErrNotFound
	}
	return err
}

// Plugins

const pluginColumns = `id, plugin_type, name, default_variant_id`

func scanPlugin(r rowScanner) (PluginRow, error) {
	var p PluginRow
	if err := r.Scan(&p.ID, &p.PluginType, &p.Name, &p.DefaultVariantID); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// ListPlugins returns every plugin ordered by type and name
func (s *SQLiteStore) ListPlugins(ctx context.Context) ([]PluginRow, error) {
	plugins, err := queryAll(ctx, s, scanPlugin,
		`SELECT `+pluginColumns+` FROM plugins ORDER BY plugin_type, name`)
	if err != nil {
		return nil, fmt.Errorf("listing plugins: %w", err)
	}
	return plugins, nil
}

// GetPlugin returns the plugin with the given type and name.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetPlugin(ctx context.Context, pluginType, name string) (*PluginRow, error) {
	p, err := scanPlugin(s.db.QueryRowContext(ctx,
		`SELECT `+pluginColumns+` FROM plugins WHERE plugin_type = ? AND name = ?`,
		pluginType, name,
	))
	if err = s.lookupErr(err); errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("querying plugin: %w", err)
	}
	return &p, nil
}

// CountPluginsByType returns the number of plugins of each type
func (s *SQLiteStore) CountPluginsByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT plugin_type, COUNT(id) FROM plugins
		WHERE id <> '' AND plugin_type <> '' AND name <> ''
		GROUP BY plugin_type`)
	if err != nil {
		return nil, fmt.Errorf("counting plugins: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var pluginType string
		var count int
		if err := rows.Scan(&pluginType, &count); err != nil {
			return nil, fmt.Errorf("scanning plugin count: %w", err)
		}
		counts[pluginType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting plugins: %w", err)
	}
	return counts, nil
}

// Variants

const variantColumns = `
	pv.id, pv.plugin_id, p.plugin_type, p.name, pv.name, pv.namespace,
	pv.label, pv.description, pv.executable, pv.docs, pv.logo_url, pv.pip_url,
	pv.repo, pv.ext_repo, pv.hidden, pv.maintenance_status, pv.quality,
	pv.domain_url, pv.definition, pv.next_steps, pv.settings_preamble,
	pv.usage, pv.prereq, pv.supported_python_versions`

const variantFrom = `
	FROM plugin_variants pv
	JOIN plugins p ON p.id = pv.plugin_id`

func scanVariant(r rowScanner) (VariantRow, error) {
	var v VariantRow
	err := r.Scan(
		&v.ID, &v.PluginID, &v.PluginType, &v.PluginName, &v.Name, &v.Namespace,
		&v.Label, &v.Description, &v.Executable, &v.Docs, &v.LogoURL, &v.PipURL,
		&v.Repo, &v.ExtRepo, &v.Hidden, &v.MaintenanceStatus, &v.Quality,
		&v.DomainURL, &v.Definition, &v.NextSteps, &v.SettingsPreamble,
		&v.Usage, &v.Prereq, &v.SupportedPythonVersions,
	)
	if err != nil {
		return v, err
	}
	return v, v.Validate()
}

// GetVariant returns a variant by id.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetVariant(ctx context.Context, id string) (*VariantRow, error) {
	v, err := scanVariant(s.db.QueryRowContext(ctx,
		`SELECT `+variantColumns+variantFrom+` WHERE pv.id = ?`, id))
	if err = s.lookupErr(err); errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("querying variant: %w", err)
	}
	return &v, nil
}

// ListVariants returns the variants of a plugin ordered by name
func (s *SQLiteStore) ListVariants(ctx context.Context, pluginID string) ([]VariantRow, error) {
	variants, err := queryAll(ctx, s, scanVariant,
		`SELECT `+variantColumns+variantFrom+` WHERE pv.plugin_id = ? ORDER BY pv.name`, pluginID)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	return variants, nil
}

// ListAllVariants returns every variant ordered by plugin type, plugin name, and variant name
func (s *SQLiteStore) ListAllVariants(ctx context.Context) ([]VariantRow, error) {
	variants, err := queryAll(ctx, s, scanVariant,
		`SELECT `+variantColumns+variantFrom+` ORDER BY p.plugin_type, p.name, pv.name`)
	if err != nil {
		return nil, fmt.Errorf("listing all variants: %w", err)
	}
	return variants, nil
}

// FindVariants returns the variants matching q
func (s *SQLiteStore) FindVariants(ctx context.Context, q VariantQuery) ([]VariantRow, error) {
	var conds []string
	var args []any
	if q.PluginName != "" {
		conds = append(conds, "p.name = ?")
		args = append(args, q.PluginName)
	}
	if q.PluginType != "" {
		conds = append(conds, "p.plugin_type = ?")
		args = append(args, q.PluginType)
	}
	if q.VariantName != "" {
		conds = append(conds, "pv.name = ?")
		args = append(args, q.VariantName)
	}
	if q.DefaultOnly {
		conds = append(conds, "pv.id = p.default_variant_id")
	}

	query := `SELECT ` + variantColumns + variantFrom
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY p.plugin_type, p.name, pv.name`

	variants, err := queryAll(ctx, s, scanVariant, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding variants: %w", err)
	}
	return variants, nil
}

// ListVariantsWithKeyword returns variants tagged with keyword, optionally
// restricted to one plugin type. A limit of zero or less returns every match.
func (s *SQLiteStore) ListVariantsWithKeyword(ctx context.Context, keyword, pluginType string, limit int) ([]VariantRow, error) {
	query := `SELECT ` + variantColumns + variantFrom + `
		JOIN keywords k ON k.variant_id = pv.id AND k.name = ?`
	args := []any{keyword}
	if pluginType != "" {
		query += ` WHERE p.plugin_type = ?`
		args = append(args, pluginType)
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY p.plugin_type, p.name, pv.name LIMIT ?`
	args = append(args, limit)

	variants, err := queryAll(ctx, s, scanVariant, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing variants with keyword: %w", err)
	}
	return variants, nil
}

// Variant children

// ListSettings returns the settings of a variant
func (s *SQLiteStore) ListSettings(ctx context.Context, variantID string) ([]SettingRow, error) {
	settings, err := queryAll(ctx, s, func(r rowScanner) (SettingRow, error) {
		var st SettingRow
		err := r.Scan(&st.ID, &st.VariantID, &st.Name, &st.Label, &st.Documentation,
			&st.Description, &st.Placeholder, &st.Env, &st.Kind, &st.Value, &st.Options, &st.Sensitive)
		if err != nil {
			return st, err
		}
		return st, st.Validate()
	}, `
		SELECT id, variant_id, name, label, documentation, description,
			placeholder, env, kind, value, options, sensitive
		FROM settings
		WHERE variant_id = ?
		ORDER BY name
	`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	return settings, nil
}

// ListSettingAliases returns the aliases of every setting of a variant
func (s *SQLiteStore) ListSettingAliases(ctx context.Context, variantID string) ([]SettingAliasRow, error) {
	aliases, err := queryAll(ctx, s, func(r rowScanner) (SettingAliasRow, error) {
		var a SettingAliasRow
		err := r.Scan(&a.ID, &a.SettingID, &a.Name)
		return a, err
	}, `
		SELECT a.id, a.setting_id, a.name
		FROM setting_aliases a
		JOIN settings s ON s.id = a.setting_id
		WHERE s.variant_id = ?
		ORDER BY a.setting_id, a.name
	`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing setting aliases: %w", err)
	}
	return aliases, nil
}

// ListSettingGroups returns the setting group memberships of a variant
func (s *SQLiteStore) ListSettingGroups(ctx context.Context, variantID string) ([]SettingGroupRow, error) {
	groups, err := queryAll(ctx, s, func(r rowScanner) (SettingGroupRow, error) {
		var g SettingGroupRow
		err := r.Scan(&g.VariantID, &g.GroupID, &g.SettingName, &g.SettingID)
		return g, err
	}, `
		SELECT variant_id, group_id, setting_name, setting_id
		FROM setting_groups
		WHERE variant_id = ?
		ORDER BY group_id, setting_name
	`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing setting groups: %w", err)
	}
	return groups, nil
}

func scanNamed(r rowScanner) (NamedRow, error) {
	var n NamedRow
	err := r.Scan(&n.ID, &n.VariantID, &n.Name)
	return n, err
}

// ListCapabilities returns the capabilities of a variant
func (s *SQLiteStore) ListCapabilities(ctx context.Context, variantID string) ([]NamedRow, error) {
	caps, err := queryAll(ctx, s, scanNamed,
		`SELECT id, variant_id, name FROM capabilities WHERE variant_id = ? ORDER BY name`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing capabilities: %w", err)
	}
	return caps, nil
}

// ListKeywords returns the keywords of a variant
func (s *SQLiteStore) ListKeywords(ctx context.Context, variantID string) ([]NamedRow, error) {
	keywords, err := queryAll(ctx, s, scanNamed,
		`SELECT id, variant_id, name FROM keywords WHERE variant_id = ? ORDER BY name`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing keywords: %w", err)
	}
	return keywords, nil
}

// ListCommands returns the commands of a variant
func (s *SQLiteStore) ListCommands(ctx context.Context, variantID string) ([]CommandRow, error) {
	commands, err := queryAll(ctx, s, func(r rowScanner) (CommandRow, error) {
		var c CommandRow
		err := r.Scan(&c.ID, &c.VariantID, &c.Name, &c.Args, &c.Description, &c.Executable)
		return c, err
	}, `
		SELECT id, variant_id, name, args, description, executable
		FROM commands
		WHERE variant_id = ?
		ORDER BY name
	`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	return commands, nil
}

// ListRequires returns the plugin requirements of a variant
func (s *SQLiteStore) ListRequires(ctx context.Context, variantID string) ([]RequireRow, error) {
	requires, err := queryAll(ctx, s, func(r rowScanner) (RequireRow, error) {
		var req RequireRow
		err := r.Scan(&req.ID, &req.VariantID, &req.PluginType, &req.Name, &req.Variant)
		return req, err
	}, `
		SELECT id, variant_id, plugin_type, name, variant
		FROM requires
		WHERE variant_id = ?
		ORDER BY plugin_type, name, variant
	`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing requires: %w", err)
	}
	return requires, nil
}

// ListSelects returns the select expressions of a variant
func (s *SQLiteStore) ListSelects(ctx context.Context, variantID string) ([]SelectRow, error) {
	selects, err := queryAll(ctx, s, func(r rowScanner) (SelectRow, error) {
		var sel SelectRow
		err := r.Scan(&sel.ID, &sel.VariantID, &sel.Expression)
		return sel, err
	}, `SELECT id, variant_id, expression FROM selects WHERE variant_id = ? ORDER BY expression`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing selects: %w", err)
	}
	return selects, nil
}

// ListMetadata returns the metadata entries of a variant
func (s *SQLiteStore) ListMetadata(ctx context.Context, variantID string) ([]MetadataRow, error) {
	entries, err := queryAll(ctx, s, func(r rowScanner) (MetadataRow, error) {
		var m MetadataRow
		err := r.Scan(&m.ID, &m.VariantID, &m.Key, &m.Value)
		return m, err
	}, `SELECT id, variant_id, key, value FROM metadata WHERE variant_id = ? ORDER BY key`, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	return entries, nil
}

// Maintainers

func scanMaintainer(r rowScanner) (MaintainerRow, error) {
	var m MaintainerRow
	if err := r.Scan(&m.ID, &m.Name, &m.Label, &m.URL); err != nil {
		return m, err
	}
	return m, m.Validate()
}

// ListMaintainers returns every maintainer ordered by id
func (s *SQLiteStore) ListMaintainers(ctx context.Context) ([]MaintainerRow, error) {
	maintainers, err := queryAll(ctx, s, scanMaintainer,
		`SELECT id, name, label, url FROM maintainers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing maintainers: %w", err)
	}
	return maintainers, nil
}

// GetMaintainer returns a maintainer by id.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetMaintainer(ctx context.Context, id string) (*MaintainerRow, error) {
	m, err := scanMaintainer(s.db.QueryRowContext(ctx,
		`SELECT id, name, label, url FROM maintainers WHERE id = ?`, id))
	if err = s.lookupErr(err); errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("querying maintainer: %w", err)
	}
	return &m, nil
}
