package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePrefixEscapesWildcards(t *testing.T) {
	assert.Equal(t, "calc:%", likePrefix("calc:"))
	assert.Equal(t, `50!%!_off%`, likePrefix("50%_off"))
	assert.Equal(t, `a!!b%`, likePrefix(`a!b`))
}

func TestIsNil(t *testing.T) {
	var s *string
	assert.True(t, isNil(nil))
	assert.True(t, isNil(s))
	assert.False(t, isNil("x"))
	assert.False(t, isNil(0))
}
