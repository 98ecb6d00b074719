package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionalSome(t *testing.T) {
	t.Parallel()

	o := Some("value")
	assert.True(t, o.Present())

	v, ok := o.Get()
	assert.True(t, ok)
	assert.Equal(t, "value", v)
	assert.Equal(t, "value", o.MustGet())
	assert.Equal(t, "value", o.OrElse("fallback"))
	assert.Equal(t, "value", o.String())
}

func TestOptionalNone(t *testing.T) {
	t.Parallel()

	o := None[int]()
	assert.False(t, o.Present())

	_, ok := o.Get()
	assert.False(t, ok)
	assert.Equal(t, 42, o.OrElse(42))
	assert.Equal(t, "<absent>", o.String())
	assert.Panics(t, func() { o.MustGet() })
}

func TestOptionalAbsenceIsNotZeroValue(t *testing.T) {
	t.Parallel()

	// A present zero value and absence must stay distinguishable.
	zero := Some(0)
	assert.True(t, zero.Present())
	assert.NotEqual(t, zero, None[int]())
}
