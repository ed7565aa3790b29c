package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelMapResolve(t *testing.T) {
	m := newLabelMap(3)
	m.add(0, "Ana")
	m.add(1, "Bruno")

	name, ok := m.Resolve(0)
	assert.True(t, ok)
	assert.Equal(t, "Ana", name)

	label, ok := m.LabelOf("Bruno")
	assert.True(t, ok)
	assert.Equal(t, 1, label)

	_, ok = m.Resolve(7)
	assert.False(t, ok)
	_, ok = m.LabelOf("Carla")
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, uint64(3), m.Epoch())
}

func TestLabelMapEmpty(t *testing.T) {
	m := newLabelMap(0)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Resolve(0)
	assert.False(t, ok)
}
