// ABOUTME: Renders a variant's markdown fields to an HTML readme with goldmark
// ABOUTME: Sections appear in a fixed order so the output is stable per snapshot

package hub

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var readmeMarkdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Readme renders the markdown fields of one variant as an HTML fragment
func (a *Assembler) Readme(ctx context.Context, key VariantKey) ([]byte, error) {
	doc, err := a.Variant(ctx, key, LevelLatest)
	if err != nil {
		return nil, err
	}

	var md strings.Builder
	title := doc.Label
	if title == "" {
		title = doc.Name
	}
	fmt.Fprintf(&md, "# %s\n\n", title)
	fmt.Fprintf(&md, "`%s` variant `%s`\n\n", doc.Name, doc.Variant)
	if doc.Description != "" {
		md.WriteString(doc.Description + "\n\n")
	}
	writeSection(&md, "Prerequisites", doc.Prereq)

	if len(doc.Settings) > 0 || doc.SettingsPreamble != "" {
		md.WriteString("## Settings\n\n")
		if doc.SettingsPreamble != "" {
			md.WriteString(doc.SettingsPreamble + "\n\n")
		}
		for _, s := range doc.Settings {
			fmt.Fprintf(&md, "- `%s`", s.Name)
			if s.Label != "" {
				fmt.Fprintf(&md, " (%s)", s.Label)
			}
			if s.Description != "" {
				md.WriteString(": " + strings.ReplaceAll(s.Description, "\n", " "))
			}
			md.WriteString("\n")
		}
		md.WriteString("\n")
	}

	writeSection(&md, "Usage", doc.Usage)
	writeSection(&md, "Next steps", doc.NextSteps)

	var out bytes.Buffer
	if err := readmeMarkdown.Convert([]byte(md.String()), &out); err != nil {
		return nil, fmt.Errorf("rendering readme: %w", err)
	}
	return out.Bytes(), nil
}

func writeSection(md *strings.Builder, heading, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(md, "## %s\n\n%s\n\n", heading, body)
}
