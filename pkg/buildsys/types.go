package buildsys

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SourceSet is a named, ordered collection of source files
type SourceSet struct {
	Name string
	// Specs holds the path specifications as declared in the build description
	Specs []string
	// Files holds the resolved paths once ExpandSources has run
	Files []string
}

// Step is a single entry of the build block
type Step struct {
	Name string
	Args []string
}

// BaseName returns the step name without its disambiguation suffix ("compile-2" -> "compile")
func (s *Step) BaseName() string {
	return stepBaseName(s.Name)
}

// HandlerName returns the name plugins use for this step's handler ("compile" -> "stepCompile")
func (s *Step) HandlerName() string {
	return StepHandlerName(s.BaseName())
}

// Description is the root build configuration. Source sets and steps are kept in declaration order.
type Description struct {
	Name    string
	Target  string
	Sources []*SourceSet
	Steps   []*Step
}

// SourceSet returns the source set with the given name or nil
func (d *Description) SourceSet(name string) *SourceSet {
	for _, set := range d.Sources {
		if set.Name == name {
			return set
		}
	}

	return nil
}

// Step returns the step with the given (full) name or nil
func (d *Description) Step(name string) *Step {
	for _, step := range d.Steps {
		if step.Name == name {
			return step
		}
	}

	return nil
}

// HasStep reports whether a step with the given name has been declared
func (d *Description) HasStep(name string) bool {
	return d.Step(name) != nil
}

// SetStep replaces the arguments of an existing step or appends a new step at the end
func (d *Description) SetStep(name string, args ...string) *Step {
	step := d.Step(name)
	if step == nil {
		step = &Step{Name: name}
		d.Steps = append(d.Steps, step)
	}

	step.Args = append([]string{}, args...)
	return step
}

// RenameStep renames a step while keeping its position. It returns false if the step
// doesn't exist or the new name is already taken.
func (d *Description) RenameStep(from, to string) bool {
	step := d.Step(from)
	if step == nil || (from != to && d.HasStep(to)) {
		return false
	}

	step.Name = to
	return true
}

// ExtensionSet is the ordered set of file extensions seen while expanding sources
type ExtensionSet struct {
	list []string
	seen map[string]bool
}

// Add records ext unless it has already been seen
func (s *ExtensionSet) Add(ext string) {
	if ext == "" {
		return
	}

	if s.seen == nil {
		s.seen = make(map[string]bool)
	}

	if !s.seen[ext] {
		s.seen[ext] = true
		s.list = append(s.list, ext)
	}
}

// Contains reports whether ext has been recorded
func (s *ExtensionSet) Contains(ext string) bool {
	return s.seen[ext]
}

// List returns the extensions in first-seen order
func (s *ExtensionSet) List() []string {
	return append([]string{}, s.list...)
}

// Len returns the number of distinct extensions
func (s *ExtensionSet) Len() int {
	return len(s.list)
}

func stepBaseName(name string) string {
	base, _, _ := strings.Cut(name, "-")
	return base
}

// StepHandlerName derives the handler name for a step: "step" followed by the name with its first
// character upper-cased.
func StepHandlerName(step string) string {
	return "step" + upperFirst(stepBaseName(step))
}

// ExtensionHookName derives the preprocessing hook name for an extension ("c" -> "extensionC")
func ExtensionHookName(ext string) string {
	return "extension" + strings.ToUpper(ext)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}

	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
