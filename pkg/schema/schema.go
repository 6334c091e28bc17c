// Package schema validates resource properties against named JSON Schemas
// (draft 2020-12) and derives default property sets from them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const baseURL = "https://schemas.burrow.local/"

// Registry holds compiled schemas by name
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*entry
	logger  zerolog.Logger
}

type entry struct {
	schema *jsonschema.Schema
	doc    any
}

// NewRegistry creates an empty schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas: make(map[string]*entry),
		logger:  log.WithComponent("schema"),
	}
}

// Register compiles schemaJSON and stores it under name, replacing any
// schema already registered with that name.
func (r *Registry) Register(name string, schemaJSON []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalid, fmt.Sprintf("schema %s is not valid JSON", name))
	}

	url := baseURL + name + ".json"
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	if err := compiler.AddResource(url, doc); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalid, fmt.Sprintf("failed to add schema %s", name))
	}

	compiled, err := compiler.Compile(url)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalid, fmt.Sprintf("failed to compile schema %s", name))
	}

	r.mu.Lock()
	r.schemas[name] = &entry{schema: compiled, doc: doc}
	r.mu.Unlock()
	return nil
}

// Has reports whether a schema is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.schemas[name]
	return ok
}

// Validate reports whether properties satisfy the named schema. Unknown
// schemas never validate.
func (r *Registry) Validate(properties map[string]any, schemaName string) bool {
	r.mu.RLock()
	e, ok := r.schemas[schemaName]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug().Str("schema", schemaName).Msg("Validation against unknown schema")
		return false
	}

	instance, err := normalize(properties)
	if err != nil {
		r.logger.Debug().Err(err).Str("schema", schemaName).Msg("Properties are not JSON encodable")
		return false
	}

	return e.schema.Validate(instance) == nil
}

// CreateDefault returns the top-level properties that declare a default or
// const value. A const takes precedence over a default.
func (r *Registry) CreateDefault(schemaName string) (map[string]any, error) {
	r.mu.RLock()
	e, ok := r.schemas[schemaName]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("schema not found: %s", schemaName)
	}

	defaults := make(map[string]any)
	root, _ := e.doc.(map[string]any)
	props, _ := root["properties"].(map[string]any)
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := prop["const"]; ok {
			defaults[name] = plain(v)
		} else if v, ok := prop["default"]; ok {
			defaults[name] = plain(v)
		}
	}
	return defaults, nil
}

// normalize round-trips properties through JSON so Go numeric types reach
// the validator as json.Number.
func normalize(properties map[string]any) (any, error) {
	data, err := json.Marshal(properties)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// plain converts json.Number leaves into int64 or float64
func plain(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}
