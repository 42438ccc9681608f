// ABOUTME: Writes a dataset to a SQLite snapshot file
// ABOUTME: Builds into a temp file beside the target and renames it into place

package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/2389/hub-gateway/internal/store"
)

// Write creates a snapshot at path holding data. Readers never observe a
// partial file: the snapshot is built in the same directory and renamed
// over path only after the transaction commits.
func Write(ctx context.Context, path string, data *store.Dataset) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hub-snapshot-*.db")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	db, err := sql.Open(store.DriverModernc, "file:"+tmpPath+"?_pragma=journal_mode(DELETE)&_pragma=foreign_keys(0)")
	if err != nil {
		return fmt.Errorf("opening temp snapshot: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := writeRows(ctx, db, data); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("moving snapshot into place: %w", err)
	}
	return nil
}

func writeRows(ctx context.Context, db *sql.DB, data *store.Dataset) error {
	if _, err := db.ExecContext(ctx, store.Schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []func() error{
		func() error {
			return insertAll(ctx, tx, `INSERT INTO maintainers (id, name, label, url) VALUES (?, ?, ?, ?)`,
				data.Maintainers, func(m store.MaintainerRow) []any {
					return []any{m.ID, m.Name, m.Label, m.URL}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO plugins (id, plugin_type, name, default_variant_id) VALUES (?, ?, ?, ?)`,
				data.Plugins, func(p store.PluginRow) []any {
					return []any{p.ID, p.PluginType, p.Name, p.DefaultVariantID}
				})
		},
		func() error {
			return insertAll(ctx, tx, `
				INSERT INTO plugin_variants (
					id, plugin_id, name, namespace, label, description, executable, docs,
					logo_url, pip_url, repo, ext_repo, hidden, maintenance_status, quality,
					domain_url, definition, next_steps, settings_preamble, usage, prereq,
					supported_python_versions
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				data.Variants, func(v store.VariantRow) []any {
					return []any{
						v.ID, v.PluginID, v.Name, v.Namespace, v.Label, v.Description, v.Executable, v.Docs,
						v.LogoURL, v.PipURL, v.Repo, v.ExtRepo, v.Hidden, v.MaintenanceStatus, v.Quality,
						v.DomainURL, v.Definition, v.NextSteps, v.SettingsPreamble, v.Usage, v.Prereq,
						v.SupportedPythonVersions,
					}
				})
		},
		func() error {
			return insertAll(ctx, tx, `
				INSERT INTO settings (
					id, variant_id, name, label, documentation, description, placeholder,
					env, kind, value, options, sensitive
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				data.Settings, func(s store.SettingRow) []any {
					return []any{
						s.ID, s.VariantID, s.Name, s.Label, s.Documentation, s.Description, s.Placeholder,
						s.Env, s.Kind, s.Value, s.Options, s.Sensitive,
					}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO setting_aliases (id, setting_id, name) VALUES (?, ?, ?)`,
				data.SettingAliases, func(a store.SettingAliasRow) []any {
					return []any{a.ID, a.SettingID, a.Name}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO setting_groups (variant_id, group_id, setting_name, setting_id) VALUES (?, ?, ?, ?)`,
				data.SettingGroups, func(g store.SettingGroupRow) []any {
					return []any{g.VariantID, g.GroupID, g.SettingName, g.SettingID}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO capabilities (id, variant_id, name) VALUES (?, ?, ?)`,
				data.Capabilities, namedArgs)
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO keywords (id, variant_id, name) VALUES (?, ?, ?)`,
				data.Keywords, namedArgs)
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO commands (id, variant_id, name, args, description, executable) VALUES (?, ?, ?, ?, ?, ?)`,
				data.Commands, func(c store.CommandRow) []any {
					return []any{c.ID, c.VariantID, c.Name, c.Args, c.Description, c.Executable}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO requires (id, variant_id, plugin_type, name, variant) VALUES (?, ?, ?, ?, ?)`,
				data.Requires, func(r store.RequireRow) []any {
					return []any{r.ID, r.VariantID, r.PluginType, r.Name, r.Variant}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO selects (id, variant_id, expression) VALUES (?, ?, ?)`,
				data.Selects, func(s store.SelectRow) []any {
					return []any{s.ID, s.VariantID, s.Expression}
				})
		},
		func() error {
			return insertAll(ctx, tx, `INSERT INTO metadata (id, variant_id, key, value) VALUES (?, ?, ?, ?)`,
				data.Metadata, func(m store.MetadataRow) []any {
					return []any{m.ID, m.VariantID, m.Key, m.Value}
				})
		},
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func namedArgs(n store.NamedRow) []any {
	return []any{n.ID, n.VariantID, n.Name}
}

// insertAll runs one prepared insert per row
func insertAll[T any](ctx context.Context, tx *sql.Tx, query string, rows []T, args func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, args(row)...); err != nil {
			return fmt.Errorf("inserting row: %w", err)
		}
	}
	return nil
}
