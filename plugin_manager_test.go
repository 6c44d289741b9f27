package razy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginManagerLookupAndCache(t *testing.T) {
	pm := NewPluginManager()

	calls := 0
	pm.AddSource("Template", SourceFunc(func(name string) (*Plugin, bool, error) {
		calls++
		if name == "trim" {
			return &Plugin{Entity: "trim-fn"}, true, nil
		}
		return nil, false, nil
	}))

	p, err := pm.GetPlugin("Template", "trim")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "trim-fn", p.Entity)

	again, err := pm.GetPlugin("Template", "trim")
	require.NoError(t, err)
	assert.Same(t, p, again, "second lookup is a cache hit")
	assert.Equal(t, 1, calls, "source consulted once per name")
}

func TestPluginManagerSourceOrder(t *testing.T) {
	pm := NewPluginManager()
	pm.AddSource("Template", MapSource{"x": {Entity: "first"}})
	pm.AddSource("Template", MapSource{"x": {Entity: "second"}, "y": {Entity: "only"}})

	p, err := pm.GetPlugin("Template", "x")
	require.NoError(t, err)
	assert.Equal(t, "first", p.Entity, "earlier source wins")

	p, err = pm.GetPlugin("Template", "y")
	require.NoError(t, err)
	assert.Equal(t, "only", p.Entity, "search falls through to later sources")
}

func TestPluginManagerNotFound(t *testing.T) {
	pm := NewPluginManager()
	pm.AddSource("Template", MapSource{})

	p, err := pm.GetPlugin("Template", "missing")
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = pm.GetPlugin("NoSuchOwner", "missing")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPluginManagerLoadError(t *testing.T) {
	pm := NewPluginManager()
	pm.AddSource("Pipeline", SourceFunc(func(string) (*Plugin, bool, error) {
		return nil, false, errors.New("syntax error")
	}))

	_, err := pm.GetPlugin("Pipeline", "broken")
	assert.ErrorIs(t, err, ErrPluginLoad)
	assert.Contains(t, err.Error(), "Pipeline/broken")
}

func TestPluginManagerReset(t *testing.T) {
	pm := NewPluginManager()
	pm.AddSource("Template", MapSource{"x": {Entity: 1}})
	pm.AddSource("Pipeline", MapSource{"y": {Entity: 2}})

	pm.Reset("Template")
	p, err := pm.GetPlugin("Template", "x")
	require.NoError(t, err)
	assert.Nil(t, p, "reset drops sources along with the cache")

	p, err = pm.GetPlugin("Pipeline", "y")
	require.NoError(t, err)
	require.NotNil(t, p, "other owners untouched")

	pm.ResetAll()
	p, err = pm.GetPlugin("Pipeline", "y")
	require.NoError(t, err)
	assert.Nil(t, p)
}
