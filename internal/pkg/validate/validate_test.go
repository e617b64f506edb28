package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescuemesh/notification-service/internal/pkg/validate"
)

type sample struct {
	Name  string `validate:"required"`
	Level string `validate:"omitempty,oneof=high medium low"`
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, validate.Struct(&sample{Name: "x", Level: "high"}))
	assert.NoError(t, validate.Struct(&sample{Name: "x"}))
}

func TestStruct_Invalid(t *testing.T) {
	err := validate.Struct(&sample{Level: "urgent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Name")
	assert.Contains(t, err.Error(), "required")
	assert.Contains(t, err.Error(), "oneof")
}
