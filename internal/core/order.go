package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is returned when module dependencies form a cycle.
var ErrCycle = errors.New("dependency cycle")

// OrderModules returns ids in installation order: core first, then every
// module after its dependencies, otherwise keeping the given order. A
// dependency that is neither selected nor installed produces a warning.
func OrderModules(ids []string, locator ModuleLocator, installed func(id string) bool) ([]string, []string, error) {
	selected := make(map[string]bool, len(ids))
	var unique []string
	for _, id := range ids {
		if !selected[id] {
			selected[id] = true
			unique = append(unique, id)
		}
	}

	deps := make(map[string][]string, len(unique))
	var warnings []string
	for _, id := range unique {
		m, ok := locator.Find(id)
		if !ok {
			continue
		}
		for _, dep := range m.Dependencies {
			switch {
			case dep == id:
			case selected[dep]:
				deps[id] = append(deps[id], dep)
			case installed != nil && installed(dep):
			default:
				warnings = append(warnings, fmt.Sprintf("module %s depends on %s, which is neither selected nor installed", id, dep))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(unique))
	var order []string
	var stack []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
				}
			}
			cycle := append(append([]string(nil), stack[start:]...), id)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		order = append(order, id)
		return nil
	}

	if selected[CoreModuleID] {
		if err := visit(CoreModuleID); err != nil {
			return nil, warnings, err
		}
	}
	for _, id := range unique {
		if err := visit(id); err != nil {
			return nil, warnings, err
		}
	}
	return order, warnings, nil
}
