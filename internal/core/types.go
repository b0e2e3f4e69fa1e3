// Package core provides the business logic for bmadkit: discovering
// modules, vendoring cross-module workflows, installing module trees and
// recording what was installed. It has zero UI dependencies and is
// independently testable.
package core

import (
	"fmt"
	"time"
)

// SourceKind classifies where a module was discovered.
type SourceKind string

const (
	KindOfficial SourceKind = "official" // <source>/src/core or <source>/src/modules/*
	KindCustom   SourceKind = "custom"   // found by walking the project tree
	KindCached   SourceKind = "cached"   // <project>/<folder>/_config/custom/*
)

// CoreModuleID is the mandatory module installed before any other.
const CoreModuleID = "core"

// ModuleDescriptor describes one installable module.
type ModuleDescriptor struct {
	ID              string
	Name            string
	Description     string
	Version         string
	Dependencies    []string
	DefaultSelected bool
	Kind            SourceKind
	Path            string // absolute module source root
	DescriptorPath  string
	Prompts         []ConfigPrompt
}

// ConfigPrompt is one configuration question declared in a module
// descriptor. Result is a template over {value}, other {keys} and the path
// placeholders; empty means the raw value.
type ConfigPrompt struct {
	Key     string
	Prompt  string
	Default any
	Result  string
}

// SkippedDir records a directory discovery could not use.
type SkippedDir struct {
	Path   string
	Reason string
	Err    error
}

// Catalog is the result of module discovery.
type Catalog struct {
	Modules       []ModuleDescriptor // official modules, core excluded
	CustomModules []ModuleDescriptor // custom and cached modules
	Core          *ModuleDescriptor
	Skipped       []SkippedDir
	Warnings      []string
}

// Find returns the module with the given ID from any list of the catalog.
func (c *Catalog) Find(id string) (*ModuleDescriptor, bool) {
	if c == nil {
		return nil, false
	}
	if c.Core != nil && c.Core.ID == id {
		return c.Core, true
	}
	for i := range c.Modules {
		if c.Modules[i].ID == id {
			return &c.Modules[i], true
		}
	}
	for i := range c.CustomModules {
		if c.CustomModules[i].ID == id {
			return &c.CustomModules[i], true
		}
	}
	return nil, false
}

// All returns every module, core first.
func (c *Catalog) All() []ModuleDescriptor {
	var all []ModuleDescriptor
	if c.Core != nil {
		all = append(all, *c.Core)
	}
	all = append(all, c.Modules...)
	return append(all, c.CustomModules...)
}

// ModuleLocator finds module sources by ID. *Catalog implements it.
type ModuleLocator interface {
	Find(id string) (*ModuleDescriptor, bool)
}

// ModuleNotFoundError is returned when no source exists for a module ID.
type ModuleNotFoundError struct {
	ID string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module %q not found", e.ID)
}

// InstallMode is the state an installation passes through.
type InstallMode string

const (
	ModeNotInstalled InstallMode = "NOT_INSTALLED"
	ModeInstalling   InstallMode = "INSTALLING"
	ModeReinstalling InstallMode = "REINSTALLING"
	ModeSyncing      InstallMode = "SYNCING"
	ModeInstalled    InstallMode = "INSTALLED"
)

// Record is the installation record stored at <folder>/_config/manifest.yaml.
type Record struct {
	Installation RecordInfo     `yaml:"installation"`
	Modules      []ModuleRecord `yaml:"modules"`
	IDEs         []string       `yaml:"ides,omitempty"`
}

// RecordInfo describes the installation as a whole.
type RecordInfo struct {
	Version     string    `yaml:"version"`
	InstallDate time.Time `yaml:"installDate"`
	LastUpdated time.Time `yaml:"lastUpdated"`
}

// ModuleRecord is one installed module in the record.
type ModuleRecord struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version,omitempty"`
	Source      SourceKind `yaml:"source"`
	InstallDate time.Time  `yaml:"installDate"`
	LastUpdated time.Time  `yaml:"lastUpdated"`
}
