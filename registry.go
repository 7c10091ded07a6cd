package grantkit

import (
	"fmt"
	"sync"
)

// ClassRegistry holds the object classes privileges can be granted on and the
// privilege kinds valid for each. It is created at startup and should be
// treated as immutable after initialization.
type ClassRegistry struct {
	mu      sync.RWMutex
	classes map[string]*ClassDefinition
}

// ClassDefinition defines one object class (e.g. "table", "database") and the
// privilege kinds that may be granted on it.
type ClassDefinition struct {
	name       string
	privileges []string
	registry   *ClassRegistry
}

// NewClassRegistry creates an empty class registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{
		classes: make(map[string]*ClassDefinition),
	}
}

// DefaultClasses returns a registry preloaded with the standard object
// classes and their privilege sets.
func DefaultClasses() *ClassRegistry {
	r := NewClassRegistry()
	r.DefineClass(ClassTable).
		Privileges(PrivilegeSelect, PrivilegeInsert, PrivilegeUpdate,
			PrivilegeDelete, PrivilegeTruncate, PrivilegeReferences,
			PrivilegeTrigger).
		DefineClass(ClassColumn).
		Privileges(PrivilegeSelect, PrivilegeInsert, PrivilegeUpdate,
			PrivilegeReferences).
		DefineClass(ClassDatabase).
		Privileges(PrivilegeCreate, PrivilegeConnect, PrivilegeTemporary).
		DefineClass(ClassSchema).
		Privileges(PrivilegeCreate, PrivilegeUsage).
		DefineClass(ClassFunction).
		Privileges(PrivilegeExecute).
		DefineClass(ClassSequence).
		Privileges(PrivilegeSelect, PrivilegeUpdate, PrivilegeUsage)
	return r
}

// DefineClass starts defining a new object class.
// Returns a ClassDefinition builder for fluent configuration.
//
// Example:
//
//	registry.DefineClass("bucket").
//	    Privileges(grantkit.PrivilegeSelect, grantkit.PrivilegeCreate)
func (r *ClassRegistry) DefineClass(name string) *ClassDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	class := &ClassDefinition{
		name:     name,
		registry: r,
	}
	r.classes[name] = class
	return class
}

// GetClass returns the definition for an object class.
// Returns nil if the class is not defined.
func (r *ClassRegistry) GetClass(name string) *ClassDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[name]
}

// GetClasses returns all defined class names.
func (r *ClassRegistry) GetClasses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	return names
}

// ValidateClass checks if an object class is defined.
func (r *ClassRegistry) ValidateClass(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.classes[name]; !exists {
		return fmt.Errorf("%w: object class %q not defined", ErrUnknownObjectClass, name)
	}
	return nil
}

// ExpandPrivileges validates the requested privilege kinds against a class
// and expands the ALL pseudo-kind to the class's full privilege set. The
// result preserves request order and contains no duplicates.
func (r *ClassRegistry) ExpandPrivileges(class string, kinds []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.classes[class]
	if !exists {
		return nil, fmt.Errorf("%w: object class %q not defined", ErrUnknownObjectClass, class)
	}

	expanded := make([]string, 0, len(kinds))
	seen := make(map[string]bool)
	add := func(kind string) {
		if !seen[kind] {
			seen[kind] = true
			expanded = append(expanded, kind)
		}
	}

	for _, kind := range kinds {
		if kind == PrivilegeAll {
			for _, k := range def.privileges {
				add(k)
			}
			continue
		}
		if !def.allows(kind) {
			return nil, fmt.Errorf("%w: privilege %q not valid for class %q", ErrUnknownPrivilege, kind, class)
		}
		add(kind)
	}
	return expanded, nil
}

func (d *ClassDefinition) allows(kind string) bool {
	for _, k := range d.privileges {
		if k == kind {
			return true
		}
	}
	return false
}

// Privileges sets the privilege kinds valid on this class.
//
// Example:
//
//	class.Privileges(grantkit.PrivilegeSelect, grantkit.PrivilegeInsert)
func (d *ClassDefinition) Privileges(kinds ...string) *ClassDefinition {
	d.privileges = append(d.privileges, kinds...)
	return d
}

// DefineClass continues defining classes on the registry (fluent API).
func (d *ClassDefinition) DefineClass(name string) *ClassDefinition {
	return d.registry.DefineClass(name)
}

// GetPrivileges returns the privilege kinds valid on this class.
func (d *ClassDefinition) GetPrivileges() []string {
	return d.privileges
}

// Name returns the class name.
func (d *ClassDefinition) Name() string {
	return d.name
}
