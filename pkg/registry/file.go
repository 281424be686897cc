package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// CatalogSchema is the JSON schema of a catalog file.
const CatalogSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tools", "groups"],
  "properties": {
    "default_group": {"type": "string", "minLength": 1},
    "tools": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["key", "kind"],
        "properties": {
          "key": {"type": "string", "pattern": "^[a-z0-9][a-z0-9_-]*$"},
          "kind": {"enum": ["remote", "local"]},
          "description": {"type": "string"},
          "url": {"type": "string", "pattern": "^https?://"},
          "method": {"enum": ["GET", "HEAD", "OPTIONS"]},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}},
          "error_markers": {"type": "array", "items": {"type": "string", "minLength": 1}},
          "format": {"enum": ["text", "json", "crtsh", "technologies", "emails", "allow"]},
          "command": {"type": "string", "minLength": 1},
          "args": {"type": "array", "items": {"type": "string"}}
        },
        "allOf": [
          {
            "if": {"properties": {"kind": {"const": "remote"}}},
            "then": {"required": ["url"], "not": {"required": ["command"]}}
          },
          {
            "if": {"properties": {"kind": {"const": "local"}}},
            "then": {
              "required": ["command"],
              "not": {"anyOf": [{"required": ["url"]}, {"required": ["method"]}, {"required": ["format"]}]}
            }
          }
        ],
        "additionalProperties": false
      }
    },
    "groups": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "minItems": 1,
        "items": {"type": "string"}
      }
    }
  },
  "additionalProperties": false
}`

// catalogFile is the on-disk representation of a catalog.
type catalogFile struct {
	DefaultGroup string              `json:"default_group"`
	Tools        []catalogTool       `json:"tools"`
	Groups       map[string][]string `json:"groups"`
}

type catalogTool struct {
	Key          string            `json:"key"`
	Kind         Kind              `json:"kind"`
	Description  string            `json:"description"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers"`
	ErrorMarkers []string          `json:"error_markers"`
	Format       Format            `json:"format"`
	Command      string            `json:"command"`
	Args         []string          `json:"args"`
}

// LoadFile reads a JSON catalog, validates it against CatalogSchema and builds
// a registry. defaultGroup is used when the file does not name one.
func LoadFile(path, defaultGroup string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data, defaultGroup)
}

// Parse validates and decodes catalog JSON.
func Parse(data []byte, defaultGroup string) (*Registry, error) {
	if err := validateCatalog(data); err != nil {
		return nil, fmt.Errorf("catalog schema validation failed: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	specs := make([]ToolSpec, 0, len(file.Tools))
	for _, t := range file.Tools {
		spec := ToolSpec{Key: t.Key, Kind: t.Kind, Description: t.Description}
		switch t.Kind {
		case KindRemote:
			spec.Remote = &RemoteSpec{
				URLTemplate:  t.URL,
				Method:       t.Method,
				Headers:      t.Headers,
				ErrorMarkers: t.ErrorMarkers,
				Format:       t.Format,
			}
		case KindLocal:
			spec.Local = &LocalSpec{Command: t.Command, Args: t.Args}
		}
		specs = append(specs, spec)
	}

	// JSON objects are unordered; keep group listings stable
	names := make([]string, 0, len(file.Groups))
	for name := range file.Groups {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, Group{Name: name, Keys: file.Groups[name]})
	}

	if file.DefaultGroup != "" {
		defaultGroup = file.DefaultGroup
	}

	return New(specs, groups, defaultGroup)
}

func validateCatalog(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(CatalogSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	return nil
}
