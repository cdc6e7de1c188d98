// Package config parses the gateway's configuration documents (spec.md
// §6): an ordered list of loaders, an ordered list of module entries, and
// an ordered list of link entries. JSON is the primary format spec.md
// names; a YAML front door is also provided, mirroring the teacher's own
// gox.yaml-style configuration (internal/config/config.go), decoding into
// the same schema via shared struct tags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lattice-run/gatewayrt/internal/gerr"
)

// LoaderKind selects how a loader entry instantiates modules that
// reference it (spec.md §6: "a type selector from the set
// {native-dynamic, out-of-process, …}").
type LoaderKind string

const (
	LoaderNativeDynamic LoaderKind = "native-dynamic"
	LoaderOutOfProcess  LoaderKind = "out-of-process"
)

// LoaderEntry names and configures one module loader.
type LoaderEntry struct {
	Name   string                 `json:"name" yaml:"name"`
	Type   LoaderKind             `json:"type" yaml:"type"`
	Config map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// ModuleEntry describes one module instance to create.
type ModuleEntry struct {
	Name       string                 `json:"name" yaml:"name"`
	Loader     string                 `json:"loader" yaml:"loader"`
	Entrypoint string                 `json:"entrypoint" yaml:"entrypoint"`
	Config     map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
}

// LinkEntry describes one link. Source may be "*" for a wildcard-source
// link (spec.md §3 "Link").
type LinkEntry struct {
	Source string `json:"source" yaml:"source"`
	Sink   string `json:"sink" yaml:"sink"`
}

// Document is the parsed configuration: the three ordered sections
// spec.md §6 requires. Unknown JSON/YAML fields are ignored by both
// decoders.
type Document struct {
	Loaders []LoaderEntry `json:"loaders" yaml:"loaders"`
	Modules []ModuleEntry `json:"modules" yaml:"modules"`
	Links   []LinkEntry   `json:"links" yaml:"links"`
}

// Parse decodes a JSON configuration document and validates it.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, gerr.Wrap(gerr.InvalidArgument, err, "config: parse JSON document")
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ParseYAML decodes a YAML configuration document and validates it.
func ParseYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, gerr.Wrap(gerr.InvalidArgument, err, "config: parse YAML document")
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Load reads a configuration document from path, choosing JSON or YAML
// decoding by file extension.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gerr.Wrap(gerr.InvalidArgument, err, "config: read %s", path)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// validate rejects the whole document if module names are duplicated
// (spec.md §6: "duplicated module names reject the whole document").
func validate(doc *Document) error {
	seen := make(map[string]struct{}, len(doc.Modules))
	for _, m := range doc.Modules {
		if m.Name == "" {
			return gerr.New(gerr.InvalidArgument, "config: module entry missing name")
		}
		if _, dup := seen[m.Name]; dup {
			return gerr.New(gerr.Duplicate, "config: duplicate module name %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

// String renders a Document for debug logging.
func (d *Document) String() string {
	return fmt.Sprintf("config.Document{loaders=%d modules=%d links=%d}", len(d.Loaders), len(d.Modules), len(d.Links))
}
