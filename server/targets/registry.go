// Package targets implements the allow-list that constrains polymorphic
// "target" references on tasks, projects, submissions and segment rules.
package targets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrTargetDoesNotExist is returned when a target kind is not registered
	ErrTargetDoesNotExist = errors.New("the target content type does not exist")
	// ErrTargetNotAllowed is returned when a target kind is registered but not allowed
	ErrTargetNotAllowed = errors.New("the target content type is not allowed")
)

// TargetType names a kind of entity, e.g. tasking.task.
type TargetType struct {
	AppLabel string `yaml:"app_label" json:"app_label"`
	Model    string `yaml:"model" json:"model"`
}

// String renders the type as "app_label.model".
func (t TargetType) String() string {
	return t.AppLabel + "." + t.Model
}

// ParseTargetType parses "app_label.model".
func ParseTargetType(s string) (TargetType, error) {
	app, model, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || app == "" || model == "" {
		return TargetType{}, fmt.Errorf("invalid target type %q: want app_label.model", s)
	}
	return TargetType{AppLabel: strings.ToLower(app), Model: strings.ToLower(model)}, nil
}

// Reference points at a single entity of some kind. The zero value means no target.
type Reference struct {
	AppLabel string `gorm:"size:100" json:"app_label,omitempty"`
	Model    string `gorm:"size:100" json:"model,omitempty"`
	ObjectID string `gorm:"size:36;index" json:"object_id,omitempty"`
}

// IsZero reports whether the reference is unset.
func (r Reference) IsZero() bool {
	return r.AppLabel == "" && r.Model == "" && r.ObjectID == ""
}

// Type returns the kind of entity referenced.
func (r Reference) Type() TargetType {
	return TargetType{AppLabel: r.AppLabel, Model: r.Model}
}

// Built-in kinds owned by this module.
var (
	TypeTask         = TargetType{AppLabel: "tasking", Model: "task"}
	TypeLocation     = TargetType{AppLabel: "tasking", Model: "location"}
	TypeLocationType = TargetType{AppLabel: "tasking", Model: "locationtype"}
	TypeProject      = TargetType{AppLabel: "tasking", Model: "project"}
	TypeSegmentRule  = TargetType{AppLabel: "tasking", Model: "segmentrule"}
	TypeSubmission   = TargetType{AppLabel: "tasking", Model: "submission"}
	TypeTaskLocation = TargetType{AppLabel: "tasking", Model: "tasklocation"}
	TypeOccurrence   = TargetType{AppLabel: "tasking", Model: "taskoccurrence"}
	TypeUser         = TargetType{AppLabel: "auth", Model: "user"}
	TypeGroup        = TargetType{AppLabel: "auth", Model: "group"}
)

// BuiltinTypes lists the kinds every registry knows about.
var BuiltinTypes = []TargetType{
	TypeTask, TypeLocation, TypeLocationType, TypeProject, TypeSegmentRule,
	TypeSubmission, TypeTaskLocation, TypeOccurrence, TypeUser, TypeGroup,
}

// DefaultAllowed is the allow-list used when configuration does not supply one.
// The logger.* kinds only match once a host application registers them.
var DefaultAllowed = []TargetType{
	TypeTask,
	TypeLocation,
	TypeProject,
	TypeSegmentRule,
	TypeSubmission,
	TypeUser,
	TypeGroup,
	{AppLabel: "logger", Model: "xform"},
	{AppLabel: "logger", Model: "instance"},
	{AppLabel: "logger", Model: "project"},
}

// Set is an unordered collection of target types.
type Set map[TargetType]struct{}

// Contains reports whether t is in the set.
func (s Set) Contains(t TargetType) bool {
	_, ok := s[t]
	return ok
}

// Sorted returns the members ordered by app label then model.
func (s Set) Sorted() []TargetType {
	out := make([]TargetType, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppLabel != out[j].AppLabel {
			return out[i].AppLabel < out[j].AppLabel
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Registry knows which entity kinds exist and which of them may be targeted.
type Registry struct {
	mu      sync.RWMutex
	known   map[TargetType]struct{}
	allowed []TargetType
}

// NewRegistry creates a registry that knows the built-in kinds and uses
// allowed as its default allow-list. A nil allowed list means DefaultAllowed.
func NewRegistry(allowed []TargetType) *Registry {
	if allowed == nil {
		allowed = DefaultAllowed
	}
	r := &Registry{
		known:   make(map[TargetType]struct{}),
		allowed: append([]TargetType(nil), allowed...),
	}
	r.Register(BuiltinTypes...)
	return r
}

// Register adds entity kinds provided by the host application.
func (r *Registry) Register(types ...TargetType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range types {
		r.known[t] = struct{}{}
	}
}

// Lookup returns the registered type for app label and model.
func (r *Registry) Lookup(appLabel, model string) (TargetType, error) {
	t := TargetType{AppLabel: appLabel, Model: model}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.known[t]; !ok {
		return TargetType{}, fmt.Errorf("%w: %s", ErrTargetDoesNotExist, t)
	}
	return t, nil
}

// AllowedTargets returns the registered kinds named in list. Kinds that are
// not registered are left out; an empty list yields an empty set.
func (r *Registry) AllowedTargets(list []TargetType) Set {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Set, len(list))
	for _, t := range list {
		if _, ok := r.known[t]; ok {
			out[t] = struct{}{}
		}
	}
	return out
}

// Allowed returns AllowedTargets for the registry's configured allow-list.
func (r *Registry) Allowed() Set {
	return r.AllowedTargets(r.allowed)
}

// Validate checks that ref points at a registered and allowed kind.
// A zero reference is valid.
func (r *Registry) Validate(ref Reference) error {
	if ref.IsZero() {
		return nil
	}
	t, err := r.Lookup(ref.AppLabel, ref.Model)
	if err != nil {
		return err
	}
	if !r.Allowed().Contains(t) {
		return fmt.Errorf("%w: %s", ErrTargetNotAllowed, t)
	}
	return nil
}
