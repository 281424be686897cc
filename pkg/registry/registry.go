// Package registry holds the static catalog of reconnaissance tools and the
// named groups that expand to them.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind distinguishes how a tool is executed.
type Kind string

const (
	// KindRemote tools are a single HTTP GET against a reconnaissance API.
	KindRemote Kind = "remote"
	// KindLocal tools spawn an executable on the host.
	KindLocal Kind = "local"
)

// TargetPlaceholder is substituted with the target in local argument
// templates and remote URL templates.
const TargetPlaceholder = "{target}"

// Format names how a remote response is turned into report text.
type Format string

const (
	// FormatText reports the body as returned. It is the default.
	FormatText Format = "text"
	// FormatJSON pretty-prints a JSON body.
	FormatJSON Format = "json"
	// FormatCrtsh lists the unique names of a crt.sh certificate search.
	FormatCrtsh Format = "crtsh"
	// FormatTechnologies groups a technology fingerprint by category.
	FormatTechnologies Format = "technologies"
	// FormatEmails numbers the addresses of an email extraction result.
	FormatEmails Format = "emails"
	// FormatAllowHeader reports the Allow header instead of the body.
	FormatAllowHeader Format = "allow"
)

var knownFormats = map[Format]bool{
	"": true, FormatText: true, FormatJSON: true, FormatCrtsh: true,
	FormatTechnologies: true, FormatEmails: true, FormatAllowHeader: true,
}

var allowedMethods = map[string]bool{"": true, "GET": true, "HEAD": true, "OPTIONS": true}

var (
	// ErrDuplicateKey is returned when two tools or groups share a name
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownMember is returned when a group references a missing tool
	ErrUnknownMember = errors.New("unknown group member")

	// ErrInvalidSpec is returned for malformed tool specs
	ErrInvalidSpec = errors.New("invalid tool spec")

	keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// RemoteSpec configures a remote tool.
type RemoteSpec struct {
	// URLTemplate is the request URL. The URL-escaped target replaces every
	// TargetPlaceholder, or is appended when the template has none.
	URLTemplate string
	// Method defaults to GET.
	Method  string
	Headers map[string]string
	// ErrorMarkers are substrings that signal the upstream rejected the query.
	ErrorMarkers []string
	Format       Format
}

// LocalSpec configures a local tool.
type LocalSpec struct {
	Command string
	Args    []string
}

// ToolSpec is one catalog entry.
type ToolSpec struct {
	Key         string
	Kind        Kind
	Description string
	Remote      *RemoteSpec
	Local       *LocalSpec
}

// Group is a named set of tool keys.
type Group struct {
	Name string
	Keys []string
}

// Registry is an immutable tool catalog. All methods are safe for concurrent use.
type Registry struct {
	tools        map[string]ToolSpec
	groups       map[string][]string
	groupOrder   []string
	defaultGroup string
}

// New validates specs and groups and builds a registry.
func New(specs []ToolSpec, groups []Group, defaultGroup string) (*Registry, error) {
	r := &Registry{
		tools:        make(map[string]ToolSpec, len(specs)),
		groups:       make(map[string][]string, len(groups)),
		defaultGroup: defaultGroup,
	}

	for _, spec := range specs {
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		if _, exists := r.tools[spec.Key]; exists {
			return nil, fmt.Errorf("%w: tool %q", ErrDuplicateKey, spec.Key)
		}
		r.tools[spec.Key] = spec
	}

	for _, group := range groups {
		name := group.Name
		if !keyPattern.MatchString(name) {
			return nil, fmt.Errorf("%w: group name %q", ErrInvalidSpec, name)
		}
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("%w: group %q collides with a tool key", ErrDuplicateKey, name)
		}
		if _, exists := r.groups[name]; exists {
			return nil, fmt.Errorf("%w: group %q", ErrDuplicateKey, name)
		}
		if len(group.Keys) == 0 {
			return nil, fmt.Errorf("%w: group %q is empty", ErrInvalidSpec, name)
		}

		members := make([]string, 0, len(group.Keys))
		for _, key := range group.Keys {
			if _, ok := r.tools[key]; !ok {
				return nil, fmt.Errorf("%w: %q in group %q", ErrUnknownMember, key, name)
			}
			members = append(members, key)
		}

		r.groups[name] = members
		r.groupOrder = append(r.groupOrder, name)
	}

	if defaultGroup == "" {
		return nil, fmt.Errorf("%w: default group is required", ErrInvalidSpec)
	}
	if _, ok := r.groups[defaultGroup]; !ok {
		return nil, fmt.Errorf("%w: default group %q is not defined", ErrInvalidSpec, defaultGroup)
	}

	return r, nil
}

func validateSpec(spec ToolSpec) error {
	if !keyPattern.MatchString(spec.Key) {
		return fmt.Errorf("%w: key %q must be lower-case alphanumeric", ErrInvalidSpec, spec.Key)
	}

	switch spec.Kind {
	case KindRemote:
		if spec.Remote == nil || spec.Local != nil {
			return fmt.Errorf("%w: remote tool %q needs remote config only", ErrInvalidSpec, spec.Key)
		}
		if !strings.HasPrefix(spec.Remote.URLTemplate, "http://") && !strings.HasPrefix(spec.Remote.URLTemplate, "https://") {
			return fmt.Errorf("%w: remote tool %q has no http(s) url template", ErrInvalidSpec, spec.Key)
		}
		if !allowedMethods[spec.Remote.Method] {
			return fmt.Errorf("%w: remote tool %q has unsupported method %q", ErrInvalidSpec, spec.Key, spec.Remote.Method)
		}
		if !knownFormats[spec.Remote.Format] {
			return fmt.Errorf("%w: remote tool %q has unknown format %q", ErrInvalidSpec, spec.Key, spec.Remote.Format)
		}
	case KindLocal:
		if spec.Local == nil || spec.Remote != nil {
			return fmt.Errorf("%w: local tool %q needs local config only", ErrInvalidSpec, spec.Key)
		}
		if spec.Local.Command == "" {
			return fmt.Errorf("%w: local tool %q has no command", ErrInvalidSpec, spec.Key)
		}
	default:
		return fmt.Errorf("%w: tool %q has unknown kind %q", ErrInvalidSpec, spec.Key, spec.Kind)
	}

	return nil
}

// Lookup returns the spec for key.
func (r *Registry) Lookup(key string) (ToolSpec, bool) {
	spec, ok := r.tools[key]
	return spec, ok
}

// ExpandGroup returns a copy of the member keys of a group.
func (r *Registry) ExpandGroup(name string) ([]string, bool) {
	members, ok := r.groups[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), members...), true
}

// IsGroup reports whether name is a group.
func (r *Registry) IsGroup(name string) bool {
	_, ok := r.groups[name]
	return ok
}

// AllKeys returns every tool key, sorted.
func (r *Registry) AllKeys() []string {
	keys := make([]string, 0, len(r.tools))
	for key := range r.tools {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Keys returns the sorted keys of one kind.
func (r *Registry) Keys(kind Kind) []string {
	var keys []string
	for key, spec := range r.tools {
		if spec.Kind == kind {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Specs returns every spec ordered by key.
func (r *Registry) Specs() []ToolSpec {
	keys := r.AllKeys()
	specs := make([]ToolSpec, 0, len(keys))
	for _, key := range keys {
		specs = append(specs, r.tools[key])
	}
	return specs
}

// Groups returns every group in declaration order.
func (r *Registry) Groups() []Group {
	groups := make([]Group, 0, len(r.groupOrder))
	for _, name := range r.groupOrder {
		groups = append(groups, Group{Name: name, Keys: append([]string(nil), r.groups[name]...)})
	}
	return groups
}

// DefaultGroup returns the group used when no tokens are given.
func (r *Registry) DefaultGroup() string {
	return r.defaultGroup
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.tools)
}
