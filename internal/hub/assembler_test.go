// ABOUTME: Tests for the Document Assembler over an in-memory snapshot
// ABOUTME: Covers grouping, deterministic output, integrity skips, and maintainer association

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hub-gateway/internal/store"
)

func testDataset() store.Dataset {
	return store.Dataset{
		Plugins: []store.PluginRow{
			{ID: "p1", PluginType: "extractors", Name: "tap-demo", DefaultVariantID: "v1"},
			{ID: "p2", PluginType: "loaders", Name: "target-demo", DefaultVariantID: "v3"},
			{ID: "p3", PluginType: "extractors", Name: "tap-broken", DefaultVariantID: "missing"},
			{ID: "p4", PluginType: "extractors", Name: "tap-empty", DefaultVariantID: "v9"},
		},
		Variants: []store.VariantRow{
			{
				ID: "v1", PluginID: "p1", Name: "meltanolabs", Namespace: "tap_demo",
				Label:   store.Text("Demo"),
				LogoURL: store.Text("/assets/logos/extractors/demo.png"),
				Repo:    store.Text("https://github.com/meltanolabs/tap-demo"),
				Hidden:  store.Bool(false),
				Usage:   store.Text("Run `meltano run tap-demo target-demo`."),
			},
			{ID: "v2", PluginID: "p1", Name: "singer-io", Namespace: "tap_demo"},
			{ID: "v3", PluginID: "p2", Name: "meltanolabs", Namespace: "target_demo"},
			{ID: "v4", PluginID: "p3", Name: "singer-io", Namespace: "tap_broken"},
		},
		Settings: []store.SettingRow{
			{ID: "s2", VariantID: "v1", Name: "start_date", Kind: store.Text("date_iso8601")},
			{
				ID: "s1", VariantID: "v1", Name: "api_key", Kind: store.Text("password"),
				Sensitive: store.Bool(true), Description: store.Text("The API key."),
			},
			{ID: "s3", VariantID: "v3", Name: "batch_size", Kind: store.Text("decimal"), Value: store.Text("100")},
			{ID: "s4", VariantID: "v2", Name: "token", Value: store.Text("not json")},
		},
		SettingAliases: []store.SettingAliasRow{
			{ID: "a2", SettingID: "s1", Name: "token"},
			{ID: "a1", SettingID: "s1", Name: "key"},
		},
		SettingGroups: []store.SettingGroupRow{
			{VariantID: "v1", GroupID: 0, SettingName: "api_key", SettingID: "s1"},
		},
		Capabilities: []store.NamedRow{
			{ID: "c2", VariantID: "v1", Name: "discover"},
			{ID: "c1", VariantID: "v1", Name: "catalog"},
		},
		Keywords: []store.NamedRow{
			{ID: "k1", VariantID: "v3", Name: SDKKeyword},
			{ID: "k2", VariantID: "v1", Name: SDKKeyword},
		},
		Commands: []store.CommandRow{
			{ID: "cmd1", VariantID: "v1", Name: "test", Args: store.Text("--about")},
		},
		Requires: []store.RequireRow{
			{ID: "r1", VariantID: "v1", PluginType: "files", Name: "files-demo", Variant: "meltano"},
		},
		Selects: []store.SelectRow{
			{ID: "sel2", VariantID: "v1", Expression: "users.*"},
			{ID: "sel1", VariantID: "v1", Expression: "accounts.*"},
		},
		Metadata: []store.MetadataRow{
			{ID: "m1", VariantID: "v1", Key: "users", Value: store.Text(`{"replication-method": "INCREMENTAL"}`)},
			{ID: "m2", VariantID: "v1", Key: "note", Value: store.Text("plain text")},
		},
		Maintainers: []store.MaintainerRow{
			{ID: "meltanolabs", Name: store.Text("Meltano Labs"), Label: store.Text("Meltano Labs"), URL: store.Text("https://github.com/meltanolabs")},
			{ID: "singer-io", Label: store.Text("Singer")},
			{ID: "nobody"},
		},
	}
}

func newTestAssembler(t *testing.T, data store.Dataset) *Assembler {
	t.Helper()
	s := store.NewMemoryStore(data)
	t.Cleanup(func() { s.Close() })
	return New(s, Options{BaseURL: "http://hub.test"})
}

func TestDefaultVariant_TapDemo(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	doc, err := a.DefaultVariant(context.Background(), Extractors, "tap-demo", LevelLatest)
	require.NoError(t, err)

	assert.Equal(t, "tap-demo", doc.Name)
	assert.Equal(t, "tap_demo", doc.Namespace)
	assert.Equal(t, "meltanolabs", doc.Variant)
	require.Len(t, doc.Settings, 2)
	assert.Equal(t, "api_key", doc.Settings[0].Name)
	assert.Equal(t, "start_date", doc.Settings[1].Name)
	assert.Equal(t, []string{"key", "token"}, doc.Settings[0].Aliases)
	assert.Equal(t, [][]string{{"api_key"}}, doc.SettingsGroupValidation)
	assert.Equal(t, []string{"start_date"}, doc.UngroupedSettings)

	// Nothing from target-demo's variant leaks in; its name only appears in v1's own usage text.
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "target_demo")
	assert.NotContains(t, string(body), "batch_size")
	for _, s := range doc.Settings {
		assert.NotEqual(t, "batch_size", s.Name)
	}
	assert.Equal(t, "Run `meltano run tap-demo target-demo`.", doc.Usage)
}

func TestVariantDocument_Children(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	doc, err := a.Variant(context.Background(), VariantKey{Extractors, "tap-demo", "meltanolabs"}, LevelLatest)
	require.NoError(t, err)

	assert.Equal(t, []string{"catalog", "discover"}, doc.Capabilities)
	assert.Equal(t, []string{"accounts.*", "users.*"}, doc.Select)
	assert.Equal(t, Command{Args: "--about"}, doc.Commands["test"])
	assert.Equal(t, []Require{{Name: "files-demo", Variant: "meltano"}}, doc.Requires["files"])
	assert.JSONEq(t, `{"replication-method":"INCREMENTAL"}`, string(doc.Metadata["users"]))
	assert.Equal(t, `"plain text"`, string(doc.Metadata["note"]))
	assert.Equal(t, "https://hub.meltano.com/assets/logos/extractors/demo.png", doc.LogoURL)
	assert.Equal(t, "https://hub.meltano.com/extractors/tap-demo--meltanolabs", doc.Docs)
	require.NotNil(t, doc.Hidden)
	assert.False(t, *doc.Hidden)
}

func TestVariantDocument_NonJSONValueIsString(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	doc, err := a.Variant(context.Background(), VariantKey{Extractors, "tap-demo", "singer-io"}, LevelLatest)
	require.NoError(t, err)
	require.Len(t, doc.Settings, 1)
	assert.Equal(t, `"not json"`, string(doc.Settings[0].Value))
	assert.Empty(t, doc.SettingsGroupValidation)
	assert.NotNil(t, doc.SettingsGroupValidation)
}

func TestAssembly_Deterministic(t *testing.T) {
	ctx := context.Background()
	data := testDataset()
	a := newTestAssembler(t, data)

	first, err := a.PluginIndex(ctx)
	require.NoError(t, err)
	second, err := a.PluginIndex(ctx)
	require.NoError(t, err)
	firstBody, _ := json.Marshal(first)
	secondBody, _ := json.Marshal(second)
	assert.Equal(t, firstBody, secondBody)

	// Row insertion order must not change the output.
	reversed := testDataset()
	slices.Reverse(reversed.Plugins)
	slices.Reverse(reversed.Variants)
	slices.Reverse(reversed.Settings)
	slices.Reverse(reversed.SettingAliases)
	slices.Reverse(reversed.Capabilities)
	slices.Reverse(reversed.Selects)
	slices.Reverse(reversed.Metadata)
	b := newTestAssembler(t, reversed)

	for _, key := range []VariantKey{
		{Extractors, "tap-demo", "meltanolabs"},
		{Loaders, "target-demo", "meltanolabs"},
	} {
		docA, err := a.Variant(ctx, key, LevelLatest)
		require.NoError(t, err)
		docB, err := b.Variant(ctx, key, LevelLatest)
		require.NoError(t, err)
		bodyA, _ := json.Marshal(docA)
		bodyB, _ := json.Marshal(docB)
		assert.Equal(t, string(bodyA), string(bodyB), key.String())
	}
}

func TestPluginIndex_SkipsBrokenPlugins(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	index, err := a.PluginIndex(context.Background())
	require.NoError(t, err)

	for _, pt := range PluginTypes {
		assert.Contains(t, index, pt)
	}
	extractors := index[Extractors]
	require.Contains(t, extractors, "tap-demo")
	assert.NotContains(t, extractors, "tap-broken")
	assert.NotContains(t, extractors, "tap-empty")

	ref := extractors["tap-demo"]
	assert.Equal(t, "meltanolabs", ref.DefaultVariant)
	assert.Equal(t,
		"http://hub.test/meltano/api/v1/plugins/extractors/tap-demo--singer-io",
		ref.Variants["singer-io"].Ref)
	assert.Empty(t, index[Mappers])
}

func TestPluginTypeIndex(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	index, err := a.PluginTypeIndex(context.Background(), Loaders)
	require.NoError(t, err)
	assert.Len(t, index, 1)
	assert.Contains(t, index, "target-demo")

	_, err = a.PluginTypeIndex(context.Background(), PluginType("widgets"))
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Equal(t, "'widgets' is not a valid plugin type", bad.Message)
}

func TestDefaultVariant_BrokenPluginIsNotFound(t *testing.T) {
	a := newTestAssembler(t, testDataset())
	ctx := context.Background()

	for _, name := range []string{"tap-broken", "tap-empty"} {
		_, err := a.DefaultVariant(ctx, Extractors, name, LevelLatest)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf, name)
		assert.True(t, errors.Is(err, store.ErrNotFound))

		_, err = a.Plugin(ctx, Extractors, name, LevelLatest)
		require.ErrorAs(t, err, &nf, name)
	}
}

func TestDefaultVariant_ForeignDefaultIsNotFound(t *testing.T) {
	data := testDataset()
	// p2's default points at a variant owned by p1
	data.Plugins[1].DefaultVariantID = "v1"
	a := newTestAssembler(t, data)

	_, err := a.DefaultVariant(context.Background(), Loaders, "target-demo", LevelLatest)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestNotFoundMessages(t *testing.T) {
	a := newTestAssembler(t, testDataset())
	ctx := context.Background()

	_, err := a.Plugin(ctx, Extractors, "tap-nope", LevelLatest)
	assert.EqualError(t, err, "Plugin 'tap-nope' was not found in extractors")

	_, err = a.Variant(ctx, VariantKey{Extractors, "tap-demo", "nope"}, LevelLatest)
	assert.EqualError(t, err, "Variant 'nope' of 'tap-demo' was not found in extractors")

	_, err = a.Maintainer(ctx, "ghost")
	assert.EqualError(t, err, "Maintainer 'ghost' not found")
}

func TestPlugin_AllVariants(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	doc, err := a.Plugin(context.Background(), Extractors, "tap-demo", LevelLatest)
	require.NoError(t, err)
	assert.Equal(t, "meltanolabs", doc.DefaultVariant)
	assert.Len(t, doc.Variants, 2)
	assert.Len(t, doc.Variants["meltanolabs"].Settings, 2)
	assert.Len(t, doc.Variants["singer-io"].Settings, 1)
}

func TestCompatibilityLevels(t *testing.T) {
	tests := []struct {
		ua   string
		want Level
	}{
		{"", LevelLatest},
		{"curl/8.0", LevelLatest},
		{"Meltano/3.9.0", LevelLatest},
		{"Meltano/4.0.1", LevelLatest},
		{"Meltano/3.8.2", LevelNoDecimal},
		{"Meltano/3.3.0", LevelNoDecimal},
		{"Meltano/3.2.1", LevelNoSensitive},
		{"Meltano/2.20.0", LevelNoSensitive},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelForUserAgent(tt.ua), tt.ua)
	}

	a := newTestAssembler(t, testDataset())
	ctx := context.Background()

	latest, err := a.DefaultVariant(ctx, Loaders, "target-demo", LevelLatest)
	require.NoError(t, err)
	assert.Equal(t, "decimal", latest.Settings[0].Kind)

	old, err := a.DefaultVariant(ctx, Loaders, "target-demo", LevelNoDecimal)
	require.NoError(t, err)
	assert.Equal(t, "integer", old.Settings[0].Kind)

	older, err := a.DefaultVariant(ctx, Extractors, "tap-demo", LevelNoSensitive)
	require.NoError(t, err)
	for _, s := range older.Settings {
		assert.Nil(t, s.Sensitive, s.Name)
	}
	current, err := a.DefaultVariant(ctx, Extractors, "tap-demo", LevelLatest)
	require.NoError(t, err)
	require.NotNil(t, current.Settings[0].Sensitive)
	assert.True(t, *current.Settings[0].Sensitive)
}

func TestResolve(t *testing.T) {
	data := testDataset()
	data.Plugins = append(data.Plugins, store.PluginRow{ID: "p5", PluginType: "loaders", Name: "tap-demo", DefaultVariantID: "v5"})
	data.Variants = append(data.Variants, store.VariantRow{ID: "v5", PluginID: "p5", Name: "meltanolabs", Namespace: "odd"})
	a := newTestAssembler(t, data)
	ctx := context.Background()

	key, err := a.Resolve(ctx, SearchQuery{Name: "tap-demo", PluginType: Extractors})
	require.NoError(t, err)
	assert.Equal(t, VariantKey{Extractors, "tap-demo", "meltanolabs"}, key)

	key, err = a.Resolve(ctx, SearchQuery{Name: "tap-demo", PluginType: Extractors, Variant: "singer-io"})
	require.NoError(t, err)
	assert.Equal(t, "singer-io", key.Variant)

	_, err = a.Resolve(ctx, SearchQuery{Name: "tap-demo"})
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
	assert.Contains(t, bad.Message, "tap-demo (extractors)")
	assert.Contains(t, bad.Message, "tap-demo (loaders)")

	_, err = a.Resolve(ctx, SearchQuery{Name: "tap-nope"})
	assert.EqualError(t, err, "Plugin 'tap-nope' was not found")

	doc, err := a.Search(ctx, SearchQuery{Name: "target-demo"}, LevelLatest)
	require.NoError(t, err)
	assert.Equal(t, "target_demo", doc.Namespace)
}

func TestSDKPluginsAndStats(t *testing.T) {
	a := newTestAssembler(t, testDataset())
	ctx := context.Background()

	all, err := a.SDKPlugins(ctx, "", 25)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, PluginListElement{
		Plugin:     "tap-demo",
		Variant:    "meltanolabs",
		PluginType: Extractors,
		Ref:        "http://hub.test/meltano/api/v1/plugins/extractors/tap-demo--meltanolabs",
	}, all[0])

	loaders, err := a.SDKPlugins(ctx, Loaders, 25)
	require.NoError(t, err)
	require.Len(t, loaders, 1)
	assert.Equal(t, "target-demo", loaders[0].Plugin)

	limited, err := a.SDKPlugins(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Extractors: 3, Loaders: 1}, stats)
}

func TestMaintainers(t *testing.T) {
	a := newTestAssembler(t, testDataset())
	ctx := context.Background()

	list, err := a.Maintainers(ctx)
	require.NoError(t, err)
	require.Len(t, list.Maintainers, 3)
	assert.Equal(t, "meltanolabs", list.Maintainers[0].ID)
	assert.Equal(t, "/meltano/v1/maintainers/meltanolabs", list.Maintainers[0].Links.Details)

	details, err := a.Maintainer(ctx, "meltanolabs")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"tap-demo":    "http://hub.test/meltano/api/v1/plugins/extractors/tap-demo--meltanolabs",
		"target-demo": "http://hub.test/meltano/api/v1/plugins/loaders/target-demo--meltanolabs",
	}, details.Links)

	top, err := a.TopMaintainers(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, MaintainerPluginCount{ID: "meltanolabs", Label: "Meltano Labs", URL: "https://github.com/meltanolabs", PluginCount: 2}, top[0])
	assert.Equal(t, "singer-io", top[1].ID)
	assert.Equal(t, 2, top[1].PluginCount)

	_, err = a.TopMaintainers(ctx, 0)
	var bad *BadRequestError
	require.ErrorAs(t, err, &bad)
	_, err = a.TopMaintainers(ctx, MaxTopMaintainers)
	require.ErrorAs(t, err, &bad)
}

func TestReadme(t *testing.T) {
	a := newTestAssembler(t, testDataset())

	html, err := a.Readme(context.Background(), VariantKey{Extractors, "tap-demo", "meltanolabs"})
	require.NoError(t, err)
	assert.Contains(t, string(html), "<h1>Demo</h1>")
	assert.Contains(t, string(html), "<h2>Settings</h2>")
	assert.Contains(t, string(html), "<code>api_key</code>")
	assert.Contains(t, string(html), "<h2>Usage</h2>")
}
