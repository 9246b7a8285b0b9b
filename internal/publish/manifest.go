package publish

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
	packdomain "github.com/smallbiznis/packhub/internal/pack/domain"
)

//go:embed manifest.schema.json
var manifestSchemaJSON []byte

var (
	manifestSchemaOnce sync.Once
	manifestSchema     *jsonschema.Schema
	manifestSchemaErr  error
)

// AutoVersion asks the registry to pick the next patch version.
const AutoVersion = "auto"

// Manifest is the typed part of a pack manifest. Unknown keys are kept in
// Extra and survive in the stored manifest.
type Manifest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  *string  `json:"description,omitempty"`
	Homepage     *string  `json:"homepage,omitempty"`
	Repository   *string  `json:"repository,omitempty"`
	License      *string  `json:"license,omitempty"`
	Changelog    *string  `json:"changelog,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Targets      []string `json:"targets,omitempty"`
	Features     []string `json:"features,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Conflicts    []string `json:"conflicts,omitempty"`
	Files        []string `json:"files,omitempty"`

	Extra map[string]any `json:"-"`
}

var manifestKeys = map[string]struct{}{
	"name": {}, "version": {}, "description": {}, "homepage": {}, "repository": {},
	"license": {}, "changelog": {}, "tags": {}, "targets": {}, "features": {},
	"dependencies": {}, "conflicts": {}, "files": {},
}

func compiledManifestSchema() (*jsonschema.Schema, error) {
	manifestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		manifestSchema, manifestSchemaErr = compiler.Compile(manifestSchemaJSON)
		if manifestSchemaErr != nil {
			manifestSchemaErr = fmt.Errorf("compile manifest schema: %w", manifestSchemaErr)
		}
	})
	return manifestSchema, manifestSchemaErr
}

// ParseManifest validates raw against the manifest schema and decodes it.
func ParseManifest(raw []byte) (*Manifest, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, ErrMissingMetadata
	}

	schema, err := compiledManifestSchema()
	if err != nil {
		return nil, err
	}
	if result := schema.ValidateJSON(raw); !result.IsValid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, result.Errors)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	var all map[string]any
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	for key, value := range all {
		if _, known := manifestKeys[key]; known {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[key] = value
	}

	m.Name = strings.TrimSpace(m.Name)
	m.Version = strings.TrimSpace(m.Version)
	if m.Name == "" || m.Version == "" {
		return nil, ErrInvalidManifest
	}
	return &m, nil
}

// Metadata is the pack-level slice refreshed on every publish.
func (m *Manifest) Metadata() packdomain.Metadata {
	return packdomain.Metadata{
		Name:         m.Name,
		Description:  m.Description,
		Homepage:     m.Homepage,
		Repository:   m.Repository,
		License:      m.License,
		Tags:         m.Tags,
		Targets:      m.Targets,
		Features:     m.Features,
		Dependencies: m.Dependencies,
		Conflicts:    m.Conflicts,
	}
}

// Encode renders the manifest with Extra merged back in.
func (m *Manifest) Encode() (json.RawMessage, error) {
	typed, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return typed, nil
	}
	out := make(map[string]any, len(m.Extra)+len(manifestKeys))
	for key, value := range m.Extra {
		out[key] = value
	}
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	for key, value := range fields {
		out[key] = value
	}
	return json.Marshal(out)
}
