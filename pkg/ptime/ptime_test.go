package ptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrequencyToInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), FrequencyToInterval(0))
	assert.Equal(t, time.Millisecond, FrequencyToInterval(1000))
	assert.Equal(t, time.Second, FrequencyToInterval(1))
}

func TestClampNonNegative(t *testing.T) {
	assert.Equal(t, time.Duration(0), ClampNonNegative(-5*time.Second))
	assert.Equal(t, 5*time.Second, ClampNonNegative(5*time.Second))
	assert.Equal(t, time.Duration(0), ClampNonNegative(0))
}

func TestMicroseconds(t *testing.T) {
	assert.Equal(t, uint64(1000), Microseconds(time.Millisecond))
	assert.Equal(t, uint64(0), Microseconds(-time.Millisecond))
}
