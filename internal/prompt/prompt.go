// Package prompt renders the LLM prompt templates shipped with the
// binary. Templates live in an embedded YAML catalog so wording changes
// never touch Go code.
package prompt

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var rawTemplates []byte

var varRe = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Vars maps template variable names to their values.
type Vars map[string]string

// Catalog is a named set of prompt templates.
type Catalog struct {
	templates map[string]string
}

// Load parses the embedded template catalog.
func Load() (*Catalog, error) {
	templates := make(map[string]string)
	if err := yaml.Unmarshal(rawTemplates, &templates); err != nil {
		return nil, fmt.Errorf("parse prompt templates: %w", err)
	}
	return &Catalog{templates: templates}, nil
}

// Render expands the named template with vars. {{variable}} placeholders
// are replaced with their values; unresolved placeholders are an error so
// a renamed variable cannot silently leak into a prompt.
func (c *Catalog) Render(name string, vars Vars) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}

	var missing []string
	expanded := varRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		varName := varRe.FindStringSubmatch(match)[1]
		if val, ok := vars[varName]; ok {
			return val
		}
		missing = append(missing, varName)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("template %q: missing variables: %s", name, strings.Join(missing, ", "))
	}
	return expanded, nil
}
