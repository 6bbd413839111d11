package synonyms

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minhyannv/vocab-enricher/pkg/vocabulary"
)

// DefaultMaxTerms is the number of terms requested per item.
const DefaultMaxTerms = 6

// Template holds the prompt parameters sent to the model for every item.
type Template struct {
	Purpose           string   `yaml:"purpose"`
	MaxTerms          int      `yaml:"max_terms"`
	ArrayOnly         bool     `yaml:"array_only"`
	HashMeansNumberOf bool     `yaml:"hash_means_number_of"`
	IncludeTitle      bool     `yaml:"include_title"`
	ExtraRules        []string `yaml:"extra_rules"`
}

// DefaultTemplate returns the built-in prompt parameters.
func DefaultTemplate() Template {
	return Template{
		Purpose:           "I need to fill a metadata vocabulary with synonyms of measures and dimensions for data analysis purposes.",
		MaxTerms:          DefaultMaxTerms,
		ArrayOnly:         true,
		HashMeansNumberOf: true,
		IncludeTitle:      true,
	}
}

// LoadTemplate reads prompt parameters from a YAML file. Keys absent from the
// file keep their default values.
func LoadTemplate(path string) (Template, error) {
	tmpl := DefaultTemplate()
	if strings.TrimSpace(path) == "" {
		return tmpl, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read prompt template: %w", err)
	}
	if err := yaml.Unmarshal(content, &tmpl); err != nil {
		return Template{}, fmt.Errorf("parse prompt template %s: %w", path, err)
	}
	if tmpl.MaxTerms <= 0 {
		return Template{}, fmt.Errorf("parse prompt template %s: max_terms must be positive", path)
	}
	return tmpl, nil
}

// Render builds the prompt for one item.
func (t Template) Render(props vocabulary.ItemProperties) string {
	title := sanitize(props.Title)
	desc := sanitize(props.Description)

	var sb strings.Builder
	if t.Purpose != "" {
		sb.WriteString(strings.TrimSpace(t.Purpose))
		sb.WriteString(" ")
	}
	sb.WriteString(fmt.Sprintf("Give me an array of at most %d synonyms of the term %q that users could use to query the data.", t.MaxTerms, title))
	if t.ArrayOnly {
		sb.WriteString("\nReply with a JSON array of strings only, without any additional sentences or explanation.")
	}
	if t.IncludeTitle {
		sb.WriteString(fmt.Sprintf("\nThe array must include the original term %q itself.", title))
	}
	if t.HashMeansNumberOf {
		sb.WriteString("\nA \"#\" character in a term means \"number of\".")
	}
	for _, rule := range t.ExtraRules {
		if rule = sanitize(rule); rule != "" {
			sb.WriteString("\n")
			sb.WriteString(rule)
		}
	}
	if desc != "" {
		sb.WriteString("\nContext about what the term means: ")
		sb.WriteString(desc)
	}
	return strings.TrimSpace(sb.String())
}

// sanitize keeps prompt fields single-line and trimmed.
func sanitize(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	return strings.TrimSpace(value)
}
