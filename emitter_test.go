package razy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterCall(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b", "api: bee")

	var aCtl *testController
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			aCtl = &testController{}
			return aCtl
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.AddAPICommand("sum", func(args ...any) (any, error) {
					total := 0
					for _, arg := range args {
						total += arg.(int)
					}
					return total, nil
				})
				a.AddAPICommand("boom", func(...any) (any, error) {
					return nil, errors.New("handler exploded")
				})
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	em, err := aCtl.agent.Emitter("acme/b")
	require.NoError(t, err)
	assert.Equal(t, "acme/b", em.Target())

	result, ok := em.Call("sum", 1, 2, 3)
	require.True(t, ok)
	assert.Equal(t, 6, result)

	// Resolution by API alias is equivalent to resolution by code.
	byAlias, err := aCtl.agent.Emitter("bee")
	require.NoError(t, err)
	assert.Equal(t, "acme/b", byAlias.Target())

	// Handler errors and unknown commands are soft failures.
	result, ok = em.Call("boom")
	assert.False(t, ok)
	assert.Nil(t, result)
	_, ok = em.Call("no-such-command")
	assert.False(t, ok)

	_, err = aCtl.agent.Emitter("acme/missing")
	assert.ErrorIs(t, err, ErrModuleNotFound)

	// External callers resolve through the distributor with no requester.
	ext, err := d.Emitter("bee")
	require.NoError(t, err)
	result, ok = ext.Call("sum", 5)
	require.True(t, ok)
	assert.Equal(t, 5, result)
}

func TestEmitterCallBelowLoaded(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	var aCtl *testController
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			aCtl = &testController{}
			return aCtl
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{
				onInit: func(a *Agent) bool {
					a.AddAPICommand("ping", func(...any) (any, error) { return "pong", nil })
					return true
				},
				onValid: func() bool { return false },
			}
		},
	}

	loadStandalone(t, folder, reg)

	em, err := aCtl.agent.Emitter("acme/b")
	require.NoError(t, err)

	result, ok := em.Call("ping")
	assert.False(t, ok, "calls against a failed module are soft failures")
	assert.Nil(t, result)
	assert.False(t, em.Touch("hello"), "handshakes against a failed module reject")
}

func TestEventEmitterResolve(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")
	writeModule(t, folder, "acme/c")

	var aCtl *testController
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			aCtl = &testController{}
			return aCtl
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Listen("acme/a", "ping", func(args ...any) any {
					return "b:" + args[0].(string)
				})
				return true
			}}
		},
		"acme/c": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Listen("acme/a", "ping", func(args ...any) any {
					return "c:" + args[0].(string)
				})
				return true
			}}
		},
	}

	loadStandalone(t, folder, reg)

	em := aCtl.agent.EventEmitter("ping")
	assert.Equal(t, "ping", em.Event())

	var seen []string
	results := em.ResolveWith(func(result any, listener string) {
		seen = append(seen, listener)
	}, "hi")

	assert.Equal(t, []any{"b:hi", "c:hi"}, results, "registration order")
	assert.Equal(t, []string{"acme/b", "acme/c"}, seen)

	assert.Empty(t, aCtl.agent.EventEmitter("unheard").Resolve("x"))
}

func TestModuleEventDispatched(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	var aCtl *testController
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			aCtl = &testController{}
			return aCtl
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Listen("acme/a", "ping", func(...any) any { return nil })
				a.Listen("acme/a", "pong", func(...any) any { return nil })
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	b, ok := d.Module("acme/b")
	require.True(t, ok)
	assert.False(t, b.EventDispatched("acme/a", "ping"))

	aCtl.agent.EventEmitter("ping").Resolve()

	assert.True(t, b.EventDispatched("acme/a", "ping"))
	assert.False(t, b.EventDispatched("acme/a", "pong"), "tracked per event")
	assert.False(t, b.EventDispatched("acme/b", "ping"), "tracked per source")
}

func TestEventEmitterSkipsUnloadedListener(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	var aCtl *testController
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			aCtl = &testController{}
			return aCtl
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{
				onInit: func(a *Agent) bool {
					a.Listen("acme/a", "ping", func(...any) any { return "b" })
					return true
				},
				onValid: func() bool { return false },
			}
		},
	}

	loadStandalone(t, folder, reg)

	assert.Empty(t, aCtl.agent.EventEmitter("ping").Resolve())
}

func TestEventEmitterDepthCap(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	var aCtl *testController
	calls := 0
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			aCtl = &testController{}
			return aCtl
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Listen("acme/a", "ping", func(...any) any {
					calls++
					// Re-entrant emission of the same event.
					return aCtl.agent.EventEmitter("ping").Resolve()
				})
				return true
			}}
		},
	}

	loadStandalone(t, folder, reg)

	aCtl.agent.EventEmitter("ping").Resolve()
	assert.Equal(t, maxResolveDepth, calls, "cyclic event graph is cut at the depth cap")
}
