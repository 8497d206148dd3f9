package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "custom", Custom.String())
	assert.Equal(t, "current", Current.String())
	assert.Equal(t, "voltage", Voltage.String())
	assert.Equal(t, "power", Power.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
