package ds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AddRemove(t *testing.T) {
	s := NewSet[string]("a", "b", "a")
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []string{"a", "b"}, s.Values())

	s.Add("c")
	s.Remove("b")
	assert.Equal(t, []string{"a", "c"}, s.Values())
	assert.False(t, s.Contains("b"))
	assert.True(t, s.Contains("c"))
}

func TestSet_OrderPreserved(t *testing.T) {
	s := NewSet[int]()
	for i := 9; i >= 0; i-- {
		s.Add(i)
	}
	assert.Equal(t, []int{9, 8, 7, 6, 5, 4, 3, 2, 1, 0}, s.Values())

	var seen []int
	s.ForEach(func(v int) { seen = append(seen, v) })
	assert.Equal(t, s.Values(), seen)
}

func TestSet_Copy(t *testing.T) {
	s := NewSet[string]("x", "y")
	c := s.Copy()
	c.Add("z")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3, c.Len())
}
