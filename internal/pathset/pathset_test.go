package pathset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAlgebra(t *testing.T) {
	a := New("a.md", "b.md", "c.md")
	b := New("b.md", "c.md", "d.md")

	assert.Equal(t, []string{"a.md", "b.md", "c.md", "d.md"}, Union(a, b).Sorted())
	assert.Equal(t, []string{"b.md", "c.md"}, Intersect(a, b).Sorted())
	assert.Equal(t, []string{"a.md"}, Difference(a, b).Sorted())
	assert.Equal(t, []string{"d.md"}, Difference(b, a).Sorted())
}

func TestNilSetReads(t *testing.T) {
	var s Set

	assert.False(t, s.Contains("x"))
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Sorted())
	assert.True(t, s.Equal(New()))

	clone := s.Clone()
	clone.Add("x")
	assert.True(t, clone.Contains("x"))
}

func TestCloneIsIndependent(t *testing.T) {
	s := New("a.md")
	c := s.Clone()
	c.Add("b.md")

	assert.False(t, s.Contains("b.md"))
	assert.True(t, c.Equal(New("a.md", "b.md")))
}
