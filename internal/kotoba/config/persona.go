package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Kotoba/common/errkind"
)

//go:embed default_character.yaml
var defaultCharacter []byte

// Persona is the agent's character: the system prompt sent first in every
// generated reply plus descriptive fields used to build it.
type Persona struct {
	Name         string   `yaml:"name"`
	SystemPrompt string   `yaml:"system_prompt"`
	Bio          []string `yaml:"bio,omitempty"`
	Style        []string `yaml:"style,omitempty"`
}

// ParsePersona decodes and validates a persona document.
func ParsePersona(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errkind.E(errkind.Config, "persona.parse", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadPersona reads the persona from path, or the built-in persona when path
// is empty.
func LoadPersona(path string) (*Persona, error) {
	if path == "" {
		return ParsePersona(defaultCharacter)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.E(errkind.Config, "persona.read", err)
	}
	return ParsePersona(data)
}

// Validate checks the fields the pipeline depends on.
func (p *Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errkind.Errorf(errkind.Config, "persona.validate", "name must not be empty")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" {
		return errkind.Errorf(errkind.Config, "persona.validate", "system_prompt must not be empty")
	}
	return nil
}

// Prompt returns the system message for generated replies: the system prompt
// followed by the bio and style lines when present.
func (p *Persona) Prompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(p.SystemPrompt))
	if len(p.Bio) > 0 {
		b.WriteString("\n\nAbout you:")
		for _, line := range p.Bio {
			fmt.Fprintf(&b, "\n- %s", line)
		}
	}
	if len(p.Style) > 0 {
		b.WriteString("\n\nStyle:")
		for _, line := range p.Style {
			fmt.Fprintf(&b, "\n- %s", line)
		}
	}
	return b.String()
}
