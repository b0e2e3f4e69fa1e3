package system

import (
	"bytes"
	"embed"
	"strings"
	"text/template"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/barysiuk/bmadkit/internal/core/placeholder"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// launcher is the data every launcher template renders.
type launcher struct {
	Name        string
	Description string
	Module      string
	Path        string // {project-root}-prefixed target
}

func newLauncher(name, description, module, path string) launcher {
	if !strings.HasPrefix(path, placeholder.ProjectRoot) {
		path = placeholder.ProjectRoot + "/" + strings.TrimPrefix(path, "/")
	}
	if description == "" {
		description = name
	}
	return launcher{Name: name, Description: description, Module: module, Path: path}
}

// moduleIndex is the data of a per-module index file.
type moduleIndex struct {
	Module    string
	Agents    []launcher
	Workflows []launcher
}

func renderTemplate(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append(out, '\n'), nil
}

// marshalFrontmatter serializes key/value pairs in order with
// double-quoted values.
func marshalFrontmatter(pairs [][2]string) ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, kv := range pairs {
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[0]},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: kv[1], Style: yaml.DoubleQuotedStyle},
		)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// tomlCommand is the Gemini CLI custom command format.
type tomlCommand struct {
	Description string `toml:"description"`
	Prompt      string `toml:"prompt"`
}

func encodeTOML(description string, prompt []byte) ([]byte, error) {
	var buf bytes.Buffer
	cmd := tomlCommand{Description: description, Prompt: string(prompt)}
	if err := toml.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
