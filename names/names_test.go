package names

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateShape(t *testing.T) {
	name := Generate(func(string) bool { return false })
	assert.Regexp(t, regexp.MustCompile(`^[a-z]+-[a-z]+$`), name)
}

func TestGenerateAvoidsTaken(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		name := Generate(func(n string) bool { return seen[n] })
		assert.False(t, seen[name])
		seen[name] = true
	}
}

func TestGenerateFallsBackToSuffix(t *testing.T) {
	// Every plain pair is taken: the generator must disambiguate, not loop.
	name := Generate(func(n string) bool {
		return strings.Count(n, "-") < 2
	})
	assert.Equal(t, 2, strings.Count(name, "-"))
}
