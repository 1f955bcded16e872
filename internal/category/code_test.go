package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	cases := map[string]int{
		"":          0,
		"2":         1,
		"2.":        1,
		"2.A":       2,
		"2.A.1":     3,
		"2.A.1.a.1": 5,
	}
	for code, want := range cases {
		assert.Equal(t, want, Level(code), code)
	}
}

func TestParentAndTruncate(t *testing.T) {
	assert.Equal(t, "2.A", Parent("2.A.1"))
	assert.Equal(t, "2", Parent("2.A"))
	assert.Equal(t, "", Parent("2."))
	assert.Equal(t, "2.A", Truncate("2.A.1.a", 2))
	assert.Equal(t, "2.A.1", Truncate("2.A.1", 9))
	assert.Equal(t, "", Truncate("2.A.1", 0))
}

func TestExpand(t *testing.T) {
	assert.Equal(t, []string{"2.A", "2.A.1"}, Expand("2.A.1", 2, 3))
	assert.Equal(t, []string{"2.B"}, Expand("2.B", 2, 3))
	assert.Empty(t, Expand("2", 2, 3))
	assert.Equal(t, []string{"2", "2.C", "2.C.1"}, Expand("2.C.1.a", 0, 3))
}

func TestIsAncestor(t *testing.T) {
	assert.True(t, IsAncestor("2.A", "2.A.1"))
	assert.True(t, IsAncestor("2.A.1", "2.A.1"))
	assert.False(t, IsAncestor("2.A.1", "2.A"))
	assert.False(t, IsAncestor("2.B", "2.A.1"))
	assert.False(t, IsAncestor("", "2.A"))
}

func TestDerivedSource(t *testing.T) {
	assert.Equal(t, "calc:gir4", DerivedSource("gir4"))
	assert.True(t, IsDerivedSource("calc:gir1"))
	assert.False(t, IsDerivedSource("gir1"))
	assert.False(t, IsDerivedSource("orig:gir-ets"))
}
