package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndIsCode(t *testing.T) {
	cause := errors.New("bucket missing")
	err := Wrap(cause, CodeInternal, "load resource failed")

	assert.True(t, IsCode(err, CodeInternal))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "internal: load resource failed: bucket missing", err.Error())
}

func TestCodeOf_ThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("deploy: %w", NotFound("host %d not found", 3))

	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWrapNil(t *testing.T) {
	err := Wrap(nil, CodeConflict, "duplicate")
	assert.Equal(t, "conflict: duplicate", err.Error())
}

func TestWithMeta(t *testing.T) {
	err := Invalid("bad properties").WithMeta("field", "name")
	assert.Equal(t, "name", err.Meta["field"])
	assert.Equal(t, CodeInvalid, err.Code)
}
