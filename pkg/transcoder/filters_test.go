package transcoder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterChain(t *testing.T) {
	t.Run("enhanced", func(t *testing.T) {
		chain := FilterChain(DefaultOptions())
		parts := strings.Split(chain, ",")
		require.Len(t, parts, 5)
		assert.Equal(t, "afftdn=nr=10:nf=-25", parts[0])
		assert.Equal(t, "loudnorm=I=-30:LRA=4:TP=-2", parts[1])
		assert.True(t, strings.HasPrefix(parts[2], "superequalizer="))
		assert.Len(t, strings.Split(strings.TrimPrefix(parts[2], "superequalizer="), ":"), 18)
		assert.Equal(t, "volume=0.8", parts[4])
	})

	t.Run("basic with custom volume", func(t *testing.T) {
		chain := FilterChain(Options{Volume: 1.25, Filters: FiltersBasic})
		assert.Equal(t, "loudnorm=I=-30:LRA=4:TP=-2,volume=1.25", chain)
	})

	t.Run("none", func(t *testing.T) {
		assert.Empty(t, FilterChain(Options{Filters: FiltersNone}))
	})
}

func TestArgs(t *testing.T) {
	args := Args("http://radio.example/live", Options{Filters: FiltersNone})

	assert.NotContains(t, args, "-af")
	assert.Equal(t, "-", args[len(args)-1])

	i := indexOf(args, "-i")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "http://radio.example/live", args[i+1])

	withFilters := Args("http://radio.example/live", DefaultOptions())
	assert.Contains(t, withFilters, "-af")
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}
