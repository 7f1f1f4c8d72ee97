package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("boutique awa", "boutique awa"))
	assert.Equal(t, 0.0, JaroWinkler("", "awa"))
	assert.InDelta(t, 0.961, JaroWinkler("martha", "marhta"), 0.001)
	assert.Greater(t, JaroWinkler("boutique awa", "boutique awaa"), 0.92)
	assert.Less(t, JaroWinkler("boutique awa", "garage kone"), 0.7)
}

func TestJaroWinkler_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"chez fatou", "chez fatoumata"},
		{"épicerie", "epicerie"},
		{"maquis", "maquis du coin"},
	}
	for _, p := range pairs {
		assert.InDelta(t, JaroWinkler(p[0], p[1]), JaroWinkler(p[1], p[0]), 1e-9)
	}
}
