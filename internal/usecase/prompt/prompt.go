// Package prompt turns (platform, length, style) into the text prompt sent
// with the image. The mapping is a set of lookup tables loaded from YAML;
// unknown keys fall back to the documented defaults.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var embeddedTemplates []byte

type tableFile struct {
	DefaultLength   string            `yaml:"default_length"`
	Lengths         map[string]string `yaml:"lengths"`
	DefaultPlatform string            `yaml:"default_platform"`
	Platforms       map[string]string `yaml:"platforms"`
	DefaultStyle    string            `yaml:"default_style"`
	Styles          map[string]string `yaml:"styles"`
}

// Table holds the parsed lookup tables. It is immutable after Load.
type Table struct {
	file         tableFile
	defaultStyle *template.Template
	styles       map[string]*template.Template
}

type vars struct {
	Platform string
	Length   string
}

// Load parses a YAML table document.
func Load(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("op=prompt.Load: %w", err)
	}
	if strings.TrimSpace(f.DefaultStyle) == "" {
		return nil, fmt.Errorf("op=prompt.Load: default_style is required")
	}
	def, err := template.New("default").Option("missingkey=error").Parse(f.DefaultStyle)
	if err != nil {
		return nil, fmt.Errorf("op=prompt.Load: default_style: %w", err)
	}
	styles := make(map[string]*template.Template, len(f.Styles))
	for name, body := range f.Styles {
		tpl, err := template.New(name).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("op=prompt.Load: style %q: %w", name, err)
		}
		styles[name] = tpl
	}
	return &Table{file: f, defaultStyle: def, styles: styles}, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the table compiled from the embedded templates.yaml.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(embeddedTemplates)
		if err != nil {
			panic(err)
		}
		defaultTable = t
	})
	return defaultTable
}

// LengthText maps a length bucket to its requirement text.
func (t *Table) LengthText(length string) string {
	if v, ok := t.file.Lengths[length]; ok {
		return v
	}
	return t.file.DefaultLength
}

// PlatformText maps a platform to its audience characteristics block.
func (t *Table) PlatformText(platform string) string {
	if v, ok := t.file.Platforms[platform]; ok {
		return strings.TrimRight(v, "\n")
	}
	return t.file.DefaultPlatform
}

// Build renders the prompt for the given parameters.
func (t *Table) Build(platform, length, style string) (string, error) {
	tpl, ok := t.styles[style]
	if !ok {
		tpl = t.defaultStyle
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, vars{Platform: t.PlatformText(platform), Length: t.LengthText(length)}); err != nil {
		return "", fmt.Errorf("op=prompt.Build: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}
