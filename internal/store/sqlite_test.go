// ABOUTME: Tests for the read-only SQLite snapshot store
// ABOUTME: Snapshots are written to t.TempDir() and compared against MemoryStore

package store_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hub-gateway/internal/snapshot"
	"github.com/2389/hub-gateway/internal/store"
)

func fixture() store.Dataset {
	return store.Dataset{
		Plugins: []store.PluginRow{
			{ID: "extractors.tap-demo", PluginType: "extractors", Name: "tap-demo", DefaultVariantID: "extractors.tap-demo.meltanolabs"},
			{ID: "loaders.target-demo", PluginType: "loaders", Name: "target-demo", DefaultVariantID: "loaders.target-demo.meltanolabs"},
		},
		Variants: []store.VariantRow{
			{ID: "loaders.target-demo.meltanolabs", PluginID: "loaders.target-demo", Name: "meltanolabs", Namespace: "target_demo", Hidden: store.Bool(false)},
			{ID: "extractors.tap-demo.singer-io", PluginID: "extractors.tap-demo", Name: "singer-io", Namespace: "tap_demo"},
			{
				ID: "extractors.tap-demo.meltanolabs", PluginID: "extractors.tap-demo", Name: "meltanolabs", Namespace: "tap_demo",
				Label: store.Text("Demo"), LogoURL: store.Text("/assets/logos/extractors/demo.png"),
				Hidden: store.Bool(true), SupportedPythonVersions: store.Text(`["3.12"]`),
			},
		},
		Settings: []store.SettingRow{
			{ID: "extractors.tap-demo.meltanolabs.setting_start_date", VariantID: "extractors.tap-demo.meltanolabs", Name: "start_date", Kind: store.Text("date_iso8601")},
			{ID: "extractors.tap-demo.meltanolabs.setting_api_key", VariantID: "extractors.tap-demo.meltanolabs", Name: "api_key", Sensitive: store.Bool(true), Value: store.Text(`"x"`)},
			{ID: "extractors.tap-demo.singer-io.setting_token", VariantID: "extractors.tap-demo.singer-io", Name: "token"},
		},
		SettingAliases: []store.SettingAliasRow{
			{ID: "extractors.tap-demo.meltanolabs.setting_api_key.alias_token", SettingID: "extractors.tap-demo.meltanolabs.setting_api_key", Name: "token"},
			{ID: "extractors.tap-demo.meltanolabs.setting_api_key.alias_key", SettingID: "extractors.tap-demo.meltanolabs.setting_api_key", Name: "key"},
		},
		SettingGroups: []store.SettingGroupRow{
			{VariantID: "extractors.tap-demo.meltanolabs", GroupID: 1, SettingName: "start_date", SettingID: "extractors.tap-demo.meltanolabs.setting_start_date"},
			{VariantID: "extractors.tap-demo.meltanolabs", GroupID: 0, SettingName: "api_key", SettingID: "extractors.tap-demo.meltanolabs.setting_api_key"},
		},
		Capabilities: []store.NamedRow{
			{ID: "extractors.tap-demo.meltanolabs.capability_state", VariantID: "extractors.tap-demo.meltanolabs", Name: "state"},
			{ID: "extractors.tap-demo.meltanolabs.capability_catalog", VariantID: "extractors.tap-demo.meltanolabs", Name: "catalog"},
		},
		Keywords: []store.NamedRow{
			{ID: "loaders.target-demo.meltanolabs.keyword_meltano_sdk", VariantID: "loaders.target-demo.meltanolabs", Name: "meltano_sdk"},
			{ID: "extractors.tap-demo.meltanolabs.keyword_meltano_sdk", VariantID: "extractors.tap-demo.meltanolabs", Name: "meltano_sdk"},
		},
		Commands: []store.CommandRow{
			{ID: "extractors.tap-demo.meltanolabs.command_test", VariantID: "extractors.tap-demo.meltanolabs", Name: "test", Args: store.Text("--test")},
		},
		Requires: []store.RequireRow{
			{ID: "extractors.tap-demo.meltanolabs.requires_files_files-demo", VariantID: "extractors.tap-demo.meltanolabs", PluginType: "files", Name: "files-demo", Variant: "meltano"},
		},
		Selects: []store.SelectRow{
			{ID: "extractors.tap-demo.meltanolabs.select_0", VariantID: "extractors.tap-demo.meltanolabs", Expression: "orders.*"},
		},
		Metadata: []store.MetadataRow{
			{ID: "extractors.tap-demo.meltanolabs.metadata_0", VariantID: "extractors.tap-demo.meltanolabs", Key: "orders", Value: store.Text(`{"replication-method":"FULL_TABLE"}`)},
			{ID: "extractors.tap-demo.meltanolabs.metadata_1", VariantID: "extractors.tap-demo.meltanolabs", Key: "empty"},
		},
		Maintainers: []store.MaintainerRow{
			{ID: "singer-io", Label: store.Text("Singer")},
			{ID: "meltanolabs", Name: store.Text("Meltano Labs"), URL: store.Text("https://github.com/MeltanoLabs")},
		},
	}
}

func openFixture(t *testing.T, driver string) *store.SQLiteStore {
	t.Helper()
	data := fixture()
	path := filepath.Join(t.TempDir(), "hub.db")
	require.NoError(t, snapshot.Write(context.Background(), path, &data))

	s, err := store.OpenSQLite(context.Background(), driver, path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_MissingFile(t *testing.T) {
	_, err := store.OpenSQLite(context.Background(), store.DriverModernc, filepath.Join(t.TempDir(), "nope.db"))
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestOpenSQLite_MissingTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.db")
	db, err := sql.Open(store.DriverModernc, path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE plugins (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = store.OpenSQLite(context.Background(), store.DriverModernc, path)
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.Contains(t, err.Error(), "plugin_variants")
}

func TestOpenSQLite_UnknownDriver(t *testing.T) {
	s := openFixture(t, store.DriverModernc)

	_, err := store.OpenSQLite(context.Background(), "postgres", s.Path())
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestOpenSQLite_ReadOnly(t *testing.T) {
	s := openFixture(t, store.DriverModernc)
	before, err := os.Stat(s.Path())
	require.NoError(t, err)

	_, err = s.ListPlugins(context.Background())
	require.NoError(t, err)

	after, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.Equal(t, before.Size(), after.Size())
}

func TestSQLiteStore_Lookups(t *testing.T) {
	for _, driver := range []string{store.DriverModernc, store.DriverCGO} {
		t.Run(driver, func(t *testing.T) {
			s := openFixture(t, driver)
			ctx := context.Background()

			p, err := s.GetPlugin(ctx, "extractors", "tap-demo")
			require.NoError(t, err)
			assert.Equal(t, "extractors.tap-demo.meltanolabs", p.DefaultVariantID)

			_, err = s.GetPlugin(ctx, "loaders", "tap-demo")
			require.ErrorIs(t, err, store.ErrNotFound)

			v, err := s.GetVariant(ctx, "extractors.tap-demo.meltanolabs")
			require.NoError(t, err)
			assert.Equal(t, "extractors", v.PluginType)
			assert.Equal(t, "tap-demo", v.PluginName)
			assert.Equal(t, store.Bool(true), v.Hidden)
			assert.Equal(t, store.Text(`["3.12"]`), v.SupportedPythonVersions)
			assert.False(t, v.Description.Valid)

			_, err = s.GetVariant(ctx, "extractors.tap-demo.nobody")
			require.ErrorIs(t, err, store.ErrNotFound)

			counts, err := s.CountPluginsByType(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"extractors": 1, "loaders": 1}, counts)

			defaults, err := s.FindVariants(ctx, store.VariantQuery{PluginName: "tap-demo", DefaultOnly: true})
			require.NoError(t, err)
			require.Len(t, defaults, 1)
			assert.Equal(t, "meltanolabs", defaults[0].Name)

			sdk, err := s.ListVariantsWithKeyword(ctx, "meltano_sdk", "", 1)
			require.NoError(t, err)
			require.Len(t, sdk, 1)
			assert.Equal(t, "extractors.tap-demo.meltanolabs", sdk[0].ID)

			m, err := s.GetMaintainer(ctx, "meltanolabs")
			require.NoError(t, err)
			assert.Equal(t, store.Text("Meltano Labs"), m.Name)

			_, err = s.GetMaintainer(ctx, "nobody")
			require.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

// TestSQLiteStore_MatchesMemoryStore checks that both stores return the same
// rows in the same order for every query
func TestSQLiteStore_MatchesMemoryStore(t *testing.T) {
	ctx := context.Background()
	sqlStore := openFixture(t, store.DriverModernc)
	memStore := store.NewMemoryStore(fixture())

	stores := []store.Store{sqlStore, memStore}
	results := make([][]any, len(stores))

	for i, s := range stores {
		var got []any
		add := func(v any, err error) {
			require.NoError(t, err)
			got = append(got, v)
		}

		add(s.ListPlugins(ctx))
		add(s.ListAllVariants(ctx))
		add(s.ListVariants(ctx, "extractors.tap-demo"))
		add(s.FindVariants(ctx, store.VariantQuery{VariantName: "meltanolabs"}))
		add(s.FindVariants(ctx, store.VariantQuery{PluginType: "loaders", DefaultOnly: true}))
		add(s.ListVariantsWithKeyword(ctx, "meltano_sdk", "", 0))
		add(s.ListVariantsWithKeyword(ctx, "meltano_sdk", "loaders", 10))
		add(s.CountPluginsByType(ctx))
		add(s.ListMaintainers(ctx))

		for _, id := range []string{"extractors.tap-demo.meltanolabs", "extractors.tap-demo.singer-io"} {
			add(s.ListSettings(ctx, id))
			add(s.ListSettingAliases(ctx, id))
			add(s.ListSettingGroups(ctx, id))
			add(s.ListCapabilities(ctx, id))
			add(s.ListKeywords(ctx, id))
			add(s.ListCommands(ctx, id))
			add(s.ListRequires(ctx, id))
			add(s.ListSelects(ctx, id))
			add(s.ListMetadata(ctx, id))
		}
		results[i] = got
	}

	require.Len(t, results[1], len(results[0]))
	for i := range results[0] {
		assert.Equal(t, results[0][i], results[1][i], "query %d", i)
	}
}

func TestMemoryStore_Close(t *testing.T) {
	s := store.NewMemoryStore(fixture())
	require.NoError(t, s.Close())

	_, err := s.ListPlugins(context.Background())
	require.ErrorIs(t, err, store.ErrUnavailable)
	_, err = s.GetMaintainer(context.Background(), "meltanolabs")
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func defectiveFixture() store.Dataset {
	data := fixture()
	data.Plugins = append(data.Plugins, store.PluginRow{ID: "extractors.", PluginType: "extractors"})
	data.Variants = append(data.Variants, store.VariantRow{
		ID: "extractors.tap-demo.", PluginID: "extractors.tap-demo", Namespace: "tap_demo",
	})
	data.Maintainers = append(data.Maintainers, store.MaintainerRow{Label: store.Text("No id")})
	return data
}

func TestStore_DefectiveRowsSkipped(t *testing.T) {
	data := defectiveFixture()
	path := filepath.Join(t.TempDir(), "hub.db")
	require.NoError(t, snapshot.Write(context.Background(), path, &data))

	sqliteStore, err := store.OpenSQLite(context.Background(), store.DriverModernc, path)
	require.NoError(t, err)
	defer sqliteStore.Close()

	stores := map[string]store.Store{
		"sqlite": sqliteStore,
		"memory": store.NewMemoryStore(data),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			plugins, err := s.ListPlugins(ctx)
			require.NoError(t, err)
			for _, p := range plugins {
				assert.NotEmpty(t, p.Name)
			}
			assert.Len(t, plugins, len(fixture().Plugins))

			variants, err := s.ListAllVariants(ctx)
			require.NoError(t, err)
			assert.Len(t, variants, len(fixture().Variants))

			variants, err = s.ListVariants(ctx, "extractors.tap-demo")
			require.NoError(t, err)
			for _, v := range variants {
				assert.NotEmpty(t, v.Name)
			}

			maintainers, err := s.ListMaintainers(ctx)
			require.NoError(t, err)
			assert.Len(t, maintainers, len(fixture().Maintainers))

			counts, err := s.CountPluginsByType(ctx)
			require.NoError(t, err)
			total := 0
			for _, n := range counts {
				total += n
			}
			assert.Equal(t, len(fixture().Plugins), total)

			_, err = s.GetVariant(ctx, "extractors.tap-demo.")
			assert.ErrorIs(t, err, store.ErrNotFound)

			// Rows that are intact remain reachable
			p, err := s.GetPlugin(ctx, "extractors", "tap-demo")
			require.NoError(t, err)
			assert.Equal(t, "tap-demo", p.Name)
		})
	}
}
