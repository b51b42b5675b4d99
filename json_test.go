package atlastt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonDumpsProducesCompactJSON(t *testing.T) {
	s, err := JsonDumps(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, s)
}

func TestJsonIndentDumpsProducesIndentedJSON(t *testing.T) {
	s, err := JsonIndentDumps(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Contains(t, s, "\n    \"a\": 1")
}
