// ABOUTME: Assembles one variant document from the variant row and its child tables
// ABOUTME: Settings are grouped by setting_groups ordinal and the rest form the ungrouped tail

package hub

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/2389/hub-gateway/internal/store"
)

// variantDocument assembles the document of one variant from its child rows
func (a *Assembler) variantDocument(ctx context.Context, v store.VariantRow, level Level) (*VariantDocument, error) {
	pt := PluginType(v.PluginType)
	doc := &VariantDocument{
		Name:              v.PluginName,
		Namespace:         v.Namespace,
		Variant:           v.Name,
		Label:             v.Label.String,
		Description:       v.Description.String,
		Docs:              v.Docs.String,
		PipURL:            v.PipURL.String,
		Executable:        v.Executable.String,
		Repo:              v.Repo.String,
		ExtRepo:           v.ExtRepo.String,
		MaintenanceStatus: v.MaintenanceStatus.String,
		Quality:           v.Quality.String,
		DomainURL:         v.DomainURL.String,
		Definition:        v.Definition.String,
		NextSteps:         v.NextSteps.String,
		SettingsPreamble:  v.SettingsPreamble.String,
		Usage:             v.Usage.String,
		Prereq:            v.Prereq.String,
	}
	if doc.Docs == "" {
		doc.Docs = fmt.Sprintf("%s/%s/%s--%s", a.hubURL, pt, v.PluginName, v.Name)
	}
	if v.LogoURL.Valid && v.LogoURL.String != "" {
		doc.LogoURL = a.hubLink(v.LogoURL.String)
	}
	if v.Hidden.Valid {
		hidden := v.Hidden.Bool
		doc.Hidden = &hidden
	}
	if v.SupportedPythonVersions.Valid {
		doc.SupportedPythonVersions = jsonValue(v.SupportedPythonVersions.String)
	}

	if err := a.attachSettings(ctx, doc, v.ID, level); err != nil {
		return nil, err
	}
	if err := a.attachChildren(ctx, doc, v.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// attachSettings fills settings, their aliases, and the setting groups
func (a *Assembler) attachSettings(ctx context.Context, doc *VariantDocument, variantID string, level Level) error {
	rows, err := a.store.ListSettings(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing settings: %w", err)
	}
	aliasRows, err := a.store.ListSettingAliases(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing setting aliases: %w", err)
	}
	groupRows, err := a.store.ListSettingGroups(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing setting groups: %w", err)
	}

	aliases := make(map[string][]string)
	for _, al := range aliasRows {
		aliases[al.SettingID] = append(aliases[al.SettingID], al.Name)
	}

	doc.Settings = make([]Setting, 0, len(rows))
	for _, row := range rows {
		s := Setting{
			Name:          row.Name,
			Label:         row.Label.String,
			Documentation: row.Documentation.String,
			Description:   row.Description.String,
			Placeholder:   row.Placeholder.String,
			Env:           row.Env.String,
			Kind:          row.Kind.String,
		}
		if names := aliases[row.ID]; len(names) > 0 {
			s.Aliases = slices.Sorted(slices.Values(names))
		}
		if row.Value.Valid {
			s.Value = jsonValue(row.Value.String)
		}
		if row.Options.Valid {
			s.Options = jsonValue(row.Options.String)
		}
		if row.Sensitive.Valid {
			sensitive := row.Sensitive.Bool
			s.Sensitive = &sensitive
		}
		level.applySetting(&s)
		doc.Settings = append(doc.Settings, s)
	}
	slices.SortFunc(doc.Settings, func(x, y Setting) int { return cmp.Compare(x.Name, y.Name) })

	groups := make(map[int][]string)
	grouped := make(map[string]bool)
	for _, g := range groupRows {
		groups[g.GroupID] = append(groups[g.GroupID], g.SettingName)
		grouped[g.SettingName] = true
	}

	doc.SettingsGroupValidation = make([][]string, 0, len(groups))
	for _, ordinal := range slices.Sorted(maps.Keys(groups)) {
		doc.SettingsGroupValidation = append(doc.SettingsGroupValidation, slices.Sorted(slices.Values(groups[ordinal])))
	}

	for _, s := range doc.Settings {
		if !grouped[s.Name] {
			doc.UngroupedSettings = append(doc.UngroupedSettings, s.Name)
		}
	}
	return nil
}

// attachChildren fills the labeled lists and maps hanging off a variant
func (a *Assembler) attachChildren(ctx context.Context, doc *VariantDocument, variantID string) error {
	caps, err := a.store.ListCapabilities(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing capabilities: %w", err)
	}
	doc.Capabilities = sortedNames(caps)

	keywords, err := a.store.ListKeywords(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing keywords: %w", err)
	}
	doc.Keywords = sortedNames(keywords)

	commands, err := a.store.ListCommands(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing commands: %w", err)
	}
	if len(commands) > 0 {
		doc.Commands = make(map[string]Command, len(commands))
		for _, c := range commands {
			doc.Commands[c.Name] = Command{
				Args:        c.Args.String,
				Description: c.Description.String,
				Executable:  c.Executable.String,
			}
		}
	}

	requires, err := a.store.ListRequires(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing requires: %w", err)
	}
	if len(requires) > 0 {
		doc.Requires = make(map[string][]Require)
		for _, r := range requires {
			doc.Requires[r.PluginType] = append(doc.Requires[r.PluginType], Require{Name: r.Name, Variant: r.Variant})
		}
		for _, reqs := range doc.Requires {
			slices.SortFunc(reqs, func(x, y Require) int {
				return cmp.Or(cmp.Compare(x.Name, y.Name), cmp.Compare(x.Variant, y.Variant))
			})
		}
	}

	selects, err := a.store.ListSelects(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing selects: %w", err)
	}
	for _, s := range selects {
		doc.Select = append(doc.Select, s.Expression)
	}
	slices.Sort(doc.Select)

	metadata, err := a.store.ListMetadata(ctx, variantID)
	if err != nil {
		return fmt.Errorf("listing metadata: %w", err)
	}
	if len(metadata) > 0 {
		doc.Metadata = make(map[string]json.RawMessage, len(metadata))
		for _, m := range metadata {
			if m.Value.Valid {
				doc.Metadata[m.Key] = jsonValue(m.Value.String)
			} else {
				doc.Metadata[m.Key] = json.RawMessage("null")
			}
		}
	}
	return nil
}

func sortedNames(rows []store.NamedRow) []string {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	slices.Sort(names)
	return names
}

// jsonValue returns text as raw JSON when it parses, otherwise as a JSON string.
// Raw values are compacted so equal content serializes identically.
func jsonValue(text string) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(text)); err == nil {
		return buf.Bytes()
	}
	encoded, _ := json.Marshal(text)
	return encoded
}
