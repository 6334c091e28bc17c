package schema

import (
	"testing"

	apperrors "github.com/cuemby/burrow/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const httpEndpointSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["type", "name", "url"],
	"properties": {
		"type": {"const": "http-endpoint"},
		"name": {"type": "string", "minLength": 1},
		"url": {"type": "string"},
		"expectedStatus": {"type": "integer", "default": 200},
		"timeoutSeconds": {"type": "number", "default": 2.5}
	}
}`

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register("http-endpoint", []byte(httpEndpointSchema)))
	return r
}

func TestValidate(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name       string
		properties map[string]any
		schema     string
		valid      bool
	}{
		{
			name:       "valid",
			properties: map[string]any{"type": "http-endpoint", "name": "web", "url": "http://x"},
			schema:     "http-endpoint",
			valid:      true,
		},
		{
			name:       "go int accepted as integer",
			properties: map[string]any{"type": "http-endpoint", "name": "web", "url": "http://x", "expectedStatus": 204},
			schema:     "http-endpoint",
			valid:      true,
		},
		{
			name:       "wrong const",
			properties: map[string]any{"type": "tcp-endpoint", "name": "web", "url": "http://x"},
			schema:     "http-endpoint",
		},
		{
			name:       "missing required",
			properties: map[string]any{"type": "http-endpoint", "name": "web"},
			schema:     "http-endpoint",
		},
		{
			name:       "wrong type",
			properties: map[string]any{"type": "http-endpoint", "name": "web", "url": "http://x", "expectedStatus": "ok"},
			schema:     "http-endpoint",
		},
		{
			name:       "unknown schema",
			properties: map[string]any{"type": "http-endpoint", "name": "web", "url": "http://x"},
			schema:     "nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, r.Validate(tt.properties, tt.schema))
		})
	}
}

func TestCreateDefault(t *testing.T) {
	r := newTestRegistry(t)

	defaults, err := r.CreateDefault("http-endpoint")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type":           "http-endpoint",
		"expectedStatus": int64(200),
		"timeoutSeconds": 2.5,
	}, defaults)

	_, err = r.CreateDefault("nope")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestRegisterRejectsBadSchemas(t *testing.T) {
	r := NewRegistry()

	err := r.Register("broken", []byte(`{"type": `))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalid))

	err = r.Register("dangling", []byte(`{"$ref": "#/$defs/missing"}`))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalid))
	assert.False(t, r.Has("dangling"))
}
