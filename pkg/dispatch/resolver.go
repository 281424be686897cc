package dispatch

import (
	"sort"
	"strings"

	"github.com/harun/recondora/pkg/registry"
)

// Selection is a sorted, duplicate-free list of tool keys.
type Selection []string

// Empty reports whether nothing was selected.
func (s Selection) Empty() bool {
	return len(s) == 0
}

// String joins the keys with ", ".
func (s Selection) String() string {
	return strings.Join(s, ", ")
}

// Resolver turns user tokens into a Selection.
type Resolver struct {
	registry *registry.Registry
}

// NewResolver creates a resolver over reg.
func NewResolver(reg *registry.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve expands tokens into tool keys. No tokens means the default group.
// Tokens are case-insensitive; tool keys add themselves, group names add
// their members and anything else is ignored.
func (r *Resolver) Resolve(tokens []string) Selection {
	if len(tokens) == 0 {
		tokens = []string{r.registry.DefaultGroup()}
	}

	set := make(map[string]struct{})
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}

		if _, ok := r.registry.Lookup(token); ok {
			set[token] = struct{}{}
			continue
		}
		if members, ok := r.registry.ExpandGroup(token); ok {
			for _, key := range members {
				set[key] = struct{}{}
			}
		}
	}

	selection := make(Selection, 0, len(set))
	for key := range set {
		selection = append(selection, key)
	}
	sort.Strings(selection)
	return selection
}

// Unknown returns the tokens Resolve would ignore, lower-cased, in input order.
func (r *Resolver) Unknown(tokens []string) []string {
	var unknown []string
	for _, token := range tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if _, ok := r.registry.Lookup(token); ok {
			continue
		}
		if r.registry.IsGroup(token) {
			continue
		}
		unknown = append(unknown, token)
	}
	return unknown
}

// SplitTokens splits free-form tool arguments on whitespace and commas.
func SplitTokens(args ...string) []string {
	var tokens []string
	for _, arg := range args {
		tokens = append(tokens, strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})...)
	}
	return tokens
}
