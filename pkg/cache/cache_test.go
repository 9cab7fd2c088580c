package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyAppliesPrefix(t *testing.T) {
	c := &Cache{prefix: "hybrid_search"}
	assert.Equal(t, "hybrid_search:q1", c.key("q1"))
}
