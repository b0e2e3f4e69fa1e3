package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overlay is a sparse customization document applied on top of an agent
// definition. Only fields listed in CustomizedFields are applied.
type Overlay struct {
	CustomizedFields []string `yaml:"customized_fields"`

	Agent struct {
		Metadata struct {
			Name  string `yaml:"name"`
			Title string `yaml:"title"`
			Icon  string `yaml:"icon"`
		} `yaml:"metadata"`
	} `yaml:"agent"`

	Persona         Persona    `yaml:"persona"`
	CriticalActions []string   `yaml:"critical_actions"`
	Memories        []string   `yaml:"memories"`
	Menu            []MenuItem `yaml:"menu"`
	Prompts         []Prompt   `yaml:"prompts"`
}

// Field paths recognized in customized_fields.
const (
	FieldName               = "agent.metadata.name"
	FieldTitle              = "agent.metadata.title"
	FieldIcon               = "agent.metadata.icon"
	FieldRole               = "persona.role"
	FieldIdentity           = "persona.identity"
	FieldCommunicationStyle = "persona.communication_style"
	FieldPrinciples         = "persona.principles"
	FieldCriticalActions    = "critical_actions"
	FieldMemories           = "memories"
	FieldMenu               = "menu"
	FieldPrompts            = "prompts"
)

// LoadOverlay reads an overlay file. A missing file returns nil, nil.
func LoadOverlay(path string) (*Overlay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading overlay: %w", err)
	}
	var o Overlay
	if err := yaml.Unmarshal(raw, &o); err != nil {
		return nil, &DocumentParseError{Path: path, Err: err}
	}
	return &o, nil
}

// Apply merges the customized fields into def. Overlay values win. It
// returns the applied field paths and those listed but not recognized.
func (o *Overlay) Apply(def *Definition) (applied, ignored []string) {
	if o == nil {
		return nil, nil
	}
	for _, field := range o.CustomizedFields {
		switch field {
		case FieldName:
			def.Metadata.Name = o.Agent.Metadata.Name
		case FieldTitle:
			def.Metadata.Title = o.Agent.Metadata.Title
		case FieldIcon:
			def.Metadata.Icon = o.Agent.Metadata.Icon
		case FieldRole:
			def.Persona.Role = o.Persona.Role
		case FieldIdentity:
			def.Persona.Identity = o.Persona.Identity
		case FieldCommunicationStyle:
			def.Persona.CommunicationStyle = o.Persona.CommunicationStyle
		case FieldPrinciples:
			def.Persona.Principles = o.Persona.Principles
		case FieldCriticalActions:
			def.CriticalActions = append(def.CriticalActions, o.CriticalActions...)
		case FieldMemories:
			def.Memories = append(def.Memories, o.Memories...)
		case FieldMenu:
			def.Menu = mergeMenu(def.Menu, o.Menu)
		case FieldPrompts:
			def.Prompts = append(def.Prompts, o.Prompts...)
		default:
			ignored = append(ignored, field)
			continue
		}
		applied = append(applied, field)
	}
	return applied, ignored
}

// mergeMenu appends overlay items; an item whose normalized trigger matches
// an existing one replaces it in place.
func mergeMenu(base, extra []MenuItem) []MenuItem {
	result := make([]MenuItem, len(base))
	copy(result, base)

	index := make(map[string]int, len(result))
	for i, item := range result {
		index[NormalizeTrigger(item.Trigger)] = i
	}
	for _, item := range extra {
		key := NormalizeTrigger(item.Trigger)
		if i, ok := index[key]; ok {
			result[i] = item
			continue
		}
		index[key] = len(result)
		result = append(result, item)
	}
	return result
}

// DefaultOverlay is written next to the installed overlays for agents that
// do not have one yet.
func DefaultOverlay() []byte {
	return []byte(`# Agent customization
# List every field you change in customized_fields; unlisted fields are ignored.
# Supported: agent.metadata.name, agent.metadata.title, agent.metadata.icon,
#   persona.role, persona.identity, persona.communication_style,
#   persona.principles, critical_actions, memories, menu, prompts
customized_fields: []

agent:
  metadata:
    name: ""

persona:
  role: ""
  identity: ""
  communication_style: ""
  principles: []

critical_actions: []

memories: []

menu: []

prompts: []
`)
}
