// ABOUTME: Build report for a hub tree load: per-type counts and load errors
// ABOUTME: Renders the error table published alongside each snapshot build

package snapshot

import (
	"fmt"
	"strings"

	"github.com/2389/hub-gateway/internal/hub"
)

// LoadError describes one problem found in a variant file
type LoadError struct {
	PluginType hub.PluginType
	Plugin     string
	Variant    string
	Link       string
	Msg        string
	Input      any
	Loc        string
}

// TypeCount is the number of plugins and loaded variants of one plugin type
type TypeCount struct {
	PluginType hub.PluginType
	Plugins    int
	Variants   int
}

// Report collects the outcome of LoadHubTree
type Report struct {
	Errors []LoadError
	Counts []TypeCount
}

func (r *Report) add(e LoadError) {
	r.Errors = append(r.Errors, e)
}

// HasErrors reports whether any variant failed to load
func (r *Report) HasErrors() bool {
	return len(r.Errors) > 0
}

// Markdown renders the errors as a markdown table
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("## Build Errors\n\n| Plugin | Error | Value | Location |\n")
	b.WriteString("|--------|---------|------|----------|\n")

	rows := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		name := e.Plugin
		if e.Variant != "" {
			name = e.Variant + "/" + e.Plugin
		}
		plugin := name
		if e.Link != "" {
			plugin = fmt.Sprintf("[%s](%s)", name, e.Link)
		}
		input := ""
		if e.Input != nil {
			input = fmt.Sprint(e.Input)
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %s | %s |", plugin, cell(e.Msg), cell(input), cell(e.Loc)))
	}
	b.WriteString(strings.Join(rows, "\n"))
	return b.String()
}

// cell keeps a value on one table row
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
