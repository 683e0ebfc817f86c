package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptPair is the system and user message for one model call. User is a
// text/template rendered against the step's inputs.
type PromptPair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`

	tmpl *template.Template
}

// Prompts holds the templates for the three model-backed steps.
type Prompts struct {
	Branding PromptPair `yaml:"branding"`
	Visuals  PromptPair `yaml:"visuals"`
	Post     PromptPair `yaml:"post"`
}

// LoadPrompts reads prompt templates from path. An empty path selects the
// built-in set.
func LoadPrompts(path string) (*Prompts, error) {
	raw := defaultPrompts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts file: %w", err)
		}
		raw = b
	}
	return ParsePrompts(raw)
}

// ParsePrompts decodes a YAML prompt document and compiles its templates.
func ParsePrompts(raw []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode prompts: %w", err)
	}
	for name, pair := range map[string]*PromptPair{
		"branding": &p.Branding,
		"visuals":  &p.Visuals,
		"post":     &p.Post,
	} {
		if strings.TrimSpace(pair.System) == "" || strings.TrimSpace(pair.User) == "" {
			return nil, fmt.Errorf("prompt %q: system and user are required", name)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(pair.User)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		pair.tmpl = t
	}
	return &p, nil
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	p, err := ParsePrompts(defaultPrompts)
	if err != nil {
		panic(err)
	}
	return p
}

// Render executes the user template with data.
func (p PromptPair) Render(data any) (string, error) {
	if p.tmpl == nil {
		return "", fmt.Errorf("prompt template not compiled")
	}
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
