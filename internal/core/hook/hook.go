// Package hook holds post-install callbacks keyed by module ID.
//
// A module that needs work done after its files are in place (creating
// output folders, seeding data) registers a Hook from an init function.
// The installer runs it last with a read-only Context. A hook that declines
// or fails never fails the install.
package hook

import (
	"fmt"
	"maps"
	"slices"
)

// Logger is the subset of the installer logger hooks may use.
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// Context is the frozen view of an installation handed to a hook. The maps
// and slices are copies; changing them has no effect on the installer.
type Context struct {
	ModuleID    string
	ProjectRoot string
	FolderName  string
	Config      map[string]any // effective module configuration
	CoreConfig  map[string]any
	IDEs        []string
	Logger      Logger
}

// String returns a config value as a string. Non-string values are formatted.
func (c Context) String(key string) (string, bool) {
	v, ok := c.Config[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

func (c Context) frozen() Context {
	c.Config = maps.Clone(c.Config)
	c.CoreConfig = maps.Clone(c.CoreConfig)
	c.IDEs = slices.Clone(c.IDEs)
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	return c
}

// Hook runs after a module is installed. It returns false to signal that
// it did not complete its work.
type Hook interface {
	Install(ctx Context) (bool, error)
}

// Func adapts a function to Hook.
type Func func(ctx Context) (bool, error)

// Install implements Hook.
func (f Func) Install(ctx Context) (bool, error) { return f(ctx) }

// Outcome is the result of running a module's hook.
type Outcome int

const (
	NoHook    Outcome = iota // nothing registered for the module
	Succeeded                // hook returned true
	Declined                 // hook returned false
	Failed                   // hook returned an error or panicked
)

func (o Outcome) String() string {
	switch o {
	case NoHook:
		return "none"
	case Succeeded:
		return "succeeded"
	case Declined:
		return "declined"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Registry maps module IDs to hooks.
type Registry struct {
	hooks map[string]Hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hook)}
}

// Register sets the hook for moduleID, replacing any previous one.
func (r *Registry) Register(moduleID string, h Hook) {
	r.hooks[moduleID] = h
}

// Get returns the hook registered for moduleID.
func (r *Registry) Get(moduleID string) (Hook, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.hooks[moduleID]
	return h, ok
}

// Modules returns the IDs with a registered hook, sorted.
func (r *Registry) Modules() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.hooks))
}

// Run invokes the hook for ctx.ModuleID. A panic inside the hook is
// recovered and reported as Failed.
func (r *Registry) Run(ctx Context) (outcome Outcome, err error) {
	h, ok := r.Get(ctx.ModuleID)
	if !ok {
		return NoHook, nil
	}

	defer func() {
		if p := recover(); p != nil {
			outcome = Failed
			err = fmt.Errorf("hook for %s panicked: %v", ctx.ModuleID, p)
		}
	}()

	done, err := h.Install(ctx.frozen())
	if err != nil {
		return Failed, fmt.Errorf("hook for %s: %w", ctx.ModuleID, err)
	}
	if !done {
		return Declined, nil
	}
	return Succeeded, nil
}

var defaultRegistry = NewRegistry()

// Register adds a hook to the default registry.
func Register(moduleID string, h Hook) { defaultRegistry.Register(moduleID, h) }

// Default returns the registry built-in hooks register into.
func Default() *Registry { return defaultRegistry }

type nopLogger struct{}

func (nopLogger) Info(string)  {}
func (nopLogger) Warn(string)  {}
func (nopLogger) Error(string) {}
