// ABOUTME: Loads a hub YAML data tree into an in-memory snapshot dataset
// ABOUTME: Invalid variant files are recorded in the report and left out of the dataset

package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/2389/hub-gateway/internal/hub"
	"github.com/2389/hub-gateway/internal/store"
)

// sourceLinkFormat points a load error at the variant file in the hub repository
const sourceLinkFormat = "https://github.com/meltano/hub/blob/main/_data/meltano/%s/%s/%s.yml"

var pythonVersionPattern = regexp.MustCompile(`^3\.\d+$`)

// variantFile is the on-disk shape of meltano/<type>/<plugin>/<variant>.yml
type variantFile struct {
	Name                    string              `yaml:"name"`
	Namespace               string              `yaml:"namespace"`
	Label                   *string             `yaml:"label"`
	Description             *string             `yaml:"description"`
	Docs                    *string             `yaml:"docs"`
	Executable              *string             `yaml:"executable"`
	LogoURL                 *string             `yaml:"logo_url"`
	PipURL                  *string             `yaml:"pip_url"`
	Repo                    string              `yaml:"repo"`
	ExtRepo                 *string             `yaml:"ext_repo"`
	Hidden                  *bool               `yaml:"hidden"`
	MaintenanceStatus       *string             `yaml:"maintenance_status"`
	Quality                 *string             `yaml:"quality"`
	DomainURL               *string             `yaml:"domain_url"`
	Definition              *string             `yaml:"definition"`
	NextSteps               *string             `yaml:"next_steps"`
	SettingsPreamble        *string             `yaml:"settings_preamble"`
	Usage                   *string             `yaml:"usage"`
	Prereq                  *string             `yaml:"prereq"`
	SupportedPythonVersions []string            `yaml:"supported_python_versions"`
	Settings                []settingFile       `yaml:"settings"`
	SettingsGroupValidation [][]string          `yaml:"settings_group_validation"`
	Capabilities            *[]string           `yaml:"capabilities"`
	Keywords                []string            `yaml:"keywords"`
	Select                  []string            `yaml:"select"`
	Metadata                yaml.Node           `yaml:"metadata"`
	Commands                yaml.Node           `yaml:"commands"`
	Requires                map[string][]reqRef `yaml:"requires"`
}

type settingFile struct {
	Name          string       `yaml:"name"`
	Label         *string      `yaml:"label"`
	Documentation *string      `yaml:"documentation"`
	Description   *string      `yaml:"description"`
	Placeholder   *string      `yaml:"placeholder"`
	Env           *string      `yaml:"env"`
	Kind          *string      `yaml:"kind"`
	Value         any          `yaml:"value"`
	Options       []optionFile `yaml:"options"`
	Sensitive     *bool        `yaml:"sensitive"`
	Aliases       []string     `yaml:"aliases"`
}

type optionFile struct {
	Label *string `yaml:"label" json:"label"`
	Value any     `yaml:"value" json:"value"`
}

type commandFile struct {
	Args        string  `yaml:"args"`
	Description *string `yaml:"description"`
	Executable  *string `yaml:"executable"`
}

type reqRef struct {
	Name    string `yaml:"name"`
	Variant string `yaml:"variant"`
}

type maintainerFile struct {
	Name  *string `yaml:"name"`
	Label *string `yaml:"label"`
	URL   *string `yaml:"url"`
}

// LoadHubTree reads default_variants.yml, maintainers.yml and every
// meltano/<type>/<plugin>/<variant>.yml under dir. Files are visited in
// lexical order so the same tree always yields the same dataset.
// Per-variant problems are collected in the Report; only unreadable
// top-level files fail the load.
func LoadHubTree(dir string) (*store.Dataset, *Report, error) {
	var defaults map[string]map[string]string
	if err := readYAML(filepath.Join(dir, "default_variants.yml"), &defaults); err != nil {
		return nil, nil, err
	}

	var maintainers map[string]maintainerFile
	if err := readYAML(filepath.Join(dir, "maintainers.yml"), &maintainers); err != nil {
		return nil, nil, err
	}

	data := &store.Dataset{}
	report := &Report{}

	for _, id := range sortedKeys(maintainers) {
		m := maintainers[id]
		data.Maintainers = append(data.Maintainers, store.MaintainerRow{
			ID:    id,
			Name:  nullText(m.Name),
			Label: nullText(m.Label),
			URL:   nullText(m.URL),
		})
	}

	for _, pt := range hub.PluginTypes {
		typeDir := filepath.Join(dir, "meltano", string(pt))
		plugins, err := subdirs(typeDir)
		if err != nil {
			return nil, nil, err
		}

		var variantCount int
		for _, plugin := range plugins {
			pluginID := string(pt) + "." + plugin
			defaultVariant, ok := defaults[string(pt)][plugin]
			if !ok {
				report.add(LoadError{
					PluginType: pt, Plugin: plugin,
					Msg: "No default variant declared",
					Loc: "default_variants." + string(pt),
				})
			}

			files, err := filepath.Glob(filepath.Join(typeDir, plugin, "*.yml"))
			if err != nil {
				return nil, nil, fmt.Errorf("listing variants of %s: %w", pluginID, err)
			}
			slices.Sort(files)

			for _, file := range files {
				variant := strings.TrimSuffix(filepath.Base(file), ".yml")
				l := &variantLoader{pluginType: pt, plugin: plugin, pluginID: pluginID, variant: variant, report: report}
				if l.load(file, data) {
					variantCount++
				}
			}

			defaultID := ""
			if defaultVariant != "" {
				defaultID = pluginID + "." + defaultVariant
			}
			data.Plugins = append(data.Plugins, store.PluginRow{
				ID:               pluginID,
				PluginType:       string(pt),
				Name:             plugin,
				DefaultVariantID: defaultID,
			})
		}

		report.Counts = append(report.Counts, TypeCount{PluginType: pt, Plugins: len(plugins), Variants: variantCount})
	}

	return data, report, nil
}

// variantLoader validates one variant file and appends its rows
type variantLoader struct {
	pluginType hub.PluginType
	plugin     string
	pluginID   string
	variant    string
	report     *Report
	failed     bool
}

func (l *variantLoader) fail(loc, msg string, input any) {
	l.failed = true
	l.report.add(LoadError{
		PluginType: l.pluginType,
		Plugin:     l.plugin,
		Variant:    l.variant,
		Link:       fmt.Sprintf(sourceLinkFormat, l.pluginType, l.plugin, l.variant),
		Msg:        msg,
		Input:      input,
		Loc:        loc,
	})
}

// load returns true when the variant was valid and added to data
func (l *variantLoader) load(path string, data *store.Dataset) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		l.fail("", "Unreadable file: "+err.Error(), nil)
		return false
	}

	var def variantFile
	if err := yaml.Unmarshal(raw, &def); err != nil {
		l.fail("", "Invalid YAML: "+err.Error(), nil)
		return false
	}

	l.validate(&def)
	rows := l.rows(&def)
	if l.failed {
		return false
	}

	data.Variants = append(data.Variants, rows.Variants...)
	data.Settings = append(data.Settings, rows.Settings...)
	data.SettingAliases = append(data.SettingAliases, rows.SettingAliases...)
	data.SettingGroups = append(data.SettingGroups, rows.SettingGroups...)
	data.Capabilities = append(data.Capabilities, rows.Capabilities...)
	data.Keywords = append(data.Keywords, rows.Keywords...)
	data.Commands = append(data.Commands, rows.Commands...)
	data.Requires = append(data.Requires, rows.Requires...)
	data.Selects = append(data.Selects, rows.Selects...)
	data.Metadata = append(data.Metadata, rows.Metadata...)
	return true
}

func (l *variantLoader) validate(def *variantFile) {
	if def.Name == "" {
		l.fail("name", "Field required", nil)
	}
	if def.Namespace == "" {
		l.fail("namespace", "Field required", nil)
	}
	if def.Repo == "" {
		l.fail("repo", "Field required", nil)
	} else if !isHTTPURL(def.Repo) {
		l.fail("repo", "Input should be a valid URL", def.Repo)
	}
	urls := []struct {
		field string
		value *string
	}{
		{"docs", def.Docs},
		{"ext_repo", def.ExtRepo},
		{"domain_url", def.DomainURL},
	}
	for _, u := range urls {
		if u.value != nil && !isHTTPURL(*u.value) {
			l.fail(u.field, "Input should be a valid URL", *u.value)
		}
	}
	if l.pluginType == hub.Extractors && def.Capabilities == nil {
		l.fail("capabilities", "Field required", nil)
	}
	for i, v := range def.SupportedPythonVersions {
		if !pythonVersionPattern.MatchString(v) {
			l.fail(fmt.Sprintf("supported_python_versions.%d", i), "String should match pattern '^3\\.\\d+$'", v)
		}
	}

	for i, s := range def.Settings {
		loc := fmt.Sprintf("settings.%d", i)
		if s.Name == "" {
			l.fail(loc+".name", "Field required", nil)
		}
		if s.Kind != nil && !slices.Contains(hub.SettingKinds, *s.Kind) {
			l.fail(loc+".kind", "Input tag does not match any of the expected setting kinds", *s.Kind)
		}
		if s.Kind != nil && *s.Kind == "options" && s.Options == nil {
			l.fail(loc+".options", "Field required", nil)
		}
	}

	for _, pt := range sortedKeys(def.Requires) {
		refs := def.Requires[pt]
		if !hub.PluginType(pt).Valid() {
			l.fail("requires."+pt, "Input should be a valid plugin type", pt)
			continue
		}
		for i, r := range refs {
			if r.Name == "" || r.Variant == "" {
				l.fail(fmt.Sprintf("requires.%s.%d", pt, i), "Field required", nil)
			}
		}
	}
}

// rows converts a validated definition into snapshot rows, using the
// same id scheme as the hub build: <type>.<plugin>.<variant>[.<child>]
func (l *variantLoader) rows(def *variantFile) store.Dataset {
	variantID := l.pluginID + "." + l.variant
	var out store.Dataset

	var pythonVersions *string
	if len(def.SupportedPythonVersions) > 0 {
		pythonVersions = l.jsonText("supported_python_versions", def.SupportedPythonVersions)
	}

	out.Variants = append(out.Variants, store.VariantRow{
		ID:                      variantID,
		PluginID:                l.pluginID,
		PluginType:              string(l.pluginType),
		PluginName:              l.plugin,
		Name:                    l.variant,
		Namespace:               def.Namespace,
		Label:                   nullText(def.Label),
		Description:             nullText(def.Description),
		Executable:              nullText(def.Executable),
		Docs:                    nullText(def.Docs),
		LogoURL:                 nullText(def.LogoURL),
		PipURL:                  nullText(def.PipURL),
		Repo:                    store.Text(def.Repo),
		ExtRepo:                 nullText(def.ExtRepo),
		Hidden:                  nullBool(def.Hidden),
		MaintenanceStatus:       nullText(def.MaintenanceStatus),
		Quality:                 nullText(def.Quality),
		DomainURL:               nullText(def.DomainURL),
		Definition:              nullText(def.Definition),
		NextSteps:               nullText(def.NextSteps),
		SettingsPreamble:        nullText(def.SettingsPreamble),
		Usage:                   nullText(def.Usage),
		Prereq:                  nullText(def.Prereq),
		SupportedPythonVersions: nullText(pythonVersions),
	})

	for i, s := range def.Settings {
		settingID := variantID + ".setting_" + s.Name
		row := store.SettingRow{
			ID:            settingID,
			VariantID:     variantID,
			Name:          s.Name,
			Label:         nullText(s.Label),
			Documentation: nullText(s.Documentation),
			Description:   nullText(s.Description),
			Placeholder:   nullText(s.Placeholder),
			Env:           nullText(s.Env),
			Kind:          nullText(s.Kind),
			Sensitive:     nullBool(s.Sensitive),
		}
		if s.Value != nil {
			row.Value = nullText(l.jsonText(fmt.Sprintf("settings.%d.value", i), s.Value))
		}
		if s.Kind != nil && *s.Kind == "options" {
			row.Options = nullText(l.jsonText(fmt.Sprintf("settings.%d.options", i), s.Options))
		}
		out.Settings = append(out.Settings, row)

		for _, alias := range s.Aliases {
			out.SettingAliases = append(out.SettingAliases, store.SettingAliasRow{
				ID:        settingID + ".alias_" + alias,
				SettingID: settingID,
				Name:      alias,
			})
		}
	}

	for groupID, group := range def.SettingsGroupValidation {
		for _, name := range group {
			out.SettingGroups = append(out.SettingGroups, store.SettingGroupRow{
				VariantID:   variantID,
				GroupID:     groupID,
				SettingName: name,
				SettingID:   variantID + ".setting_" + name,
			})
		}
	}

	if def.Capabilities != nil {
		for _, c := range *def.Capabilities {
			out.Capabilities = append(out.Capabilities, store.NamedRow{ID: variantID + ".capability_" + c, VariantID: variantID, Name: c})
		}
	}
	for _, k := range def.Keywords {
		out.Keywords = append(out.Keywords, store.NamedRow{ID: variantID + ".keyword_" + k, VariantID: variantID, Name: k})
	}
	for i, expr := range def.Select {
		out.Selects = append(out.Selects, store.SelectRow{ID: fmt.Sprintf("%s.select_%d", variantID, i), VariantID: variantID, Expression: expr})
	}

	l.metadataRows(variantID, &def.Metadata, &out)
	l.commandRows(variantID, &def.Commands, &out)

	for _, pt := range sortedKeys(def.Requires) {
		for _, r := range def.Requires[pt] {
			out.Requires = append(out.Requires, store.RequireRow{
				ID:         fmt.Sprintf("%s.requires_%s_%s", variantID, pt, r.Name),
				VariantID:  variantID,
				PluginType: pt,
				Name:       r.Name,
				Variant:    r.Variant,
			})
		}
	}

	return out
}

// metadataRows keeps document order. String values are stored as-is,
// anything else as JSON.
func (l *variantLoader) metadataRows(variantID string, node *yaml.Node, out *store.Dataset) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return
	}
	if node.Kind != yaml.MappingNode {
		l.fail("metadata", "Input should be a valid dictionary", nil)
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			l.fail("metadata."+key, err.Error(), nil)
			continue
		}

		row := store.MetadataRow{ID: fmt.Sprintf("%s.metadata_%d", variantID, i/2), VariantID: variantID, Key: key}
		switch v := value.(type) {
		case nil:
		case string:
			row.Value = store.Text(v)
		default:
			row.Value = nullText(l.jsonText("metadata."+key, v))
		}
		out.Metadata = append(out.Metadata, row)
	}
}

// commandRows accepts both the short form (name: args) and the long form
// (name: {args, description, executable})
func (l *variantLoader) commandRows(variantID string, node *yaml.Node, out *store.Dataset) {
	if node.Kind == 0 || node.Tag == "!!null" {
		return
	}
	if node.Kind != yaml.MappingNode {
		l.fail("commands", "Input should be a valid dictionary", nil)
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		value := node.Content[i+1]
		row := store.CommandRow{ID: variantID + ".command_" + name, VariantID: variantID, Name: name}

		switch value.Kind {
		case yaml.ScalarNode:
			row.Args = store.Text(value.Value)
		case yaml.MappingNode:
			var cmd commandFile
			if err := value.Decode(&cmd); err != nil {
				l.fail("commands."+name, err.Error(), nil)
				continue
			}
			if cmd.Args == "" {
				l.fail("commands."+name+".args", "Field required", nil)
				continue
			}
			row.Args = store.Text(cmd.Args)
			row.Description = nullText(cmd.Description)
			row.Executable = nullText(cmd.Executable)
		default:
			l.fail("commands."+name, "Input should be a valid string or command", nil)
			continue
		}
		out.Commands = append(out.Commands, row)
	}
}

func (l *variantLoader) jsonText(loc string, v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		l.fail(loc, "Value is not JSON serializable", fmt.Sprint(v))
		return nil
	}
	s := string(b)
	return &s
}

func readYAML(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// subdirs lists directory names under dir in lexical order; a missing dir is empty
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func nullText(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return store.Text(*s)
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return store.Bool(*b)
}
