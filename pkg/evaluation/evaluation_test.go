package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldReflectTriggersStrictlyBelowThreshold(t *testing.T) {
	assert.True(t, ShouldReflect(0.29, 0.3))
	assert.True(t, ShouldReflect(-0.6, 0.3))
}

func TestShouldReflectDoesNotTriggerAtOrAboveThreshold(t *testing.T) {
	assert.False(t, ShouldReflect(0.3, 0.3))
	assert.False(t, ShouldReflect(0.31, 0.3))
	assert.False(t, ShouldReflect(1.0, 0.3))
}
