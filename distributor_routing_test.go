package razy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRegexBeforeLazy(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Bind("show", func(context.Context, *RoutedInfo) error { return nil })
				a.Bind("fallback", func(context.Context, *RoutedInfo) error { return nil })
				require.NoError(t, a.SetLazyRoute("/", "fallback"))
				require.NoError(t, a.SetRoute("/user/:w/", "show"))
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	rt, target := d.Match("/user/alice/")
	require.NotNil(t, rt)
	assert.Equal(t, "show", rt.ClosurePath)
	assert.Equal(t, []string{"alice"}, rt.Args)
	assert.Equal(t, "acme/a", target.Info().Code())

	rt, _ = d.Match("/anything/else/")
	require.NotNil(t, rt)
	assert.Equal(t, "fallback", rt.ClosurePath)
	assert.Equal(t, []string{"anything", "else"}, rt.Args)
}

func TestMatchDeeperLazyPrefixWins(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Bind("shallow", func(context.Context, *RoutedInfo) error { return nil })
				a.Bind("deep", func(context.Context, *RoutedInfo) error { return nil })
				// Shallower prefix registered first on purpose.
				require.NoError(t, a.SetLazyRoute("/a/", "shallow"))
				require.NoError(t, a.SetLazyRoute("/a/b/", "deep"))
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	rt, _ := d.Match("/a/b/c/")
	require.NotNil(t, rt)
	assert.Equal(t, "deep", rt.ClosurePath)
	assert.Equal(t, []string{"c"}, rt.Args)

	rt, _ = d.Match("/a/x/")
	require.NotNil(t, rt)
	assert.Equal(t, "shallow", rt.ClosurePath)
	assert.Equal(t, []string{"x"}, rt.Args)
}

func TestMatchShadowRoute(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				require.NoError(t, a.SetShadowRoute("/shop/", "acme/b", "handle"))
				return true
			}}
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Bind("handle", func(context.Context, *RoutedInfo) error { return nil })
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	rt, target := d.Match("/shop/cart/")
	require.NotNil(t, rt)
	assert.Equal(t, "acme/a", rt.Module, "route credited to its owner")
	assert.Equal(t, "acme/b", rt.Target, "handler runs on the shadow target")
	assert.Equal(t, "acme/b", target.Info().Code())
}

func TestDispatchProtocolOrder(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	var sequence []string
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{
				onInit: func(a *Agent) bool {
					a.Bind("show", func(ctx context.Context, rt *RoutedInfo) error {
						sequence = append(sequence, "handler")
						got, ok := DistributorFrom(ctx)
						assert.True(t, ok)
						assert.Same(t, a.Distributor(), got)
						assert.True(t, a.Distributor().InRouting())
						return nil
					})
					require.NoError(t, a.SetRoute("/user/:w/", "show"))
					return true
				},
				onPrepare: func(args []string) bool {
					sequence = append(sequence, "prepare")
					assert.Equal(t, []string{"alice"}, args)
					return true
				},
				onStandby: func(target *ModuleInfo) {
					sequence = append(sequence, "standby:a:"+target.Code())
				},
				onEntry: func(rt *RoutedInfo) {
					sequence = append(sequence, "entry")
					assert.Equal(t, "/user/alice/", rt.URLPath)
				},
			}
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onStandby: func(target *ModuleInfo) {
				sequence = append(sequence, "standby:b:"+target.Code())
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	matched, err := d.Dispatch(context.Background(), "/user/alice/")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, []string{
		"prepare",
		"standby:a:acme/a",
		"standby:b:acme/a",
		"entry",
		"handler",
	}, sequence)
	assert.False(t, d.InRouting(), "call-flow marker released after dispatch")
}

func TestDispatchPrepareSuppresses(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	handled := false
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{
				onInit: func(a *Agent) bool {
					a.Bind("show", func(context.Context, *RoutedInfo) error {
						handled = true
						return nil
					})
					require.NoError(t, a.SetRoute("/user/:w/", "show"))
					return true
				},
				onPrepare: func([]string) bool { return false },
			}
		},
	}

	d := loadStandalone(t, folder, reg)

	matched, err := d.Dispatch(context.Background(), "/user/alice/")
	assert.NoError(t, err)
	assert.False(t, matched)
	assert.False(t, handled)
}

func TestDispatchUnmatched(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	d := loadStandalone(t, folder, ControllerRegistry{})

	matched, err := d.Dispatch(context.Background(), "/nothing/here/")
	assert.NoError(t, err)
	assert.False(t, matched)
}

func TestDispatchRoutePayload(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	var gotData any
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Bind("page", func(_ context.Context, rt *RoutedInfo) error {
					gotData = rt.Data
					return nil
				})
				require.NoError(t, a.SetRoute("/p/:d/", DataPath{Path: "page", Payload: "about"}))
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	matched, err := d.Dispatch(context.Background(), "/p/1/")
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, "about", gotData)
}

func TestMatchSkipsUnloadedOwner(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")
	writeModule(t, folder, "acme/b")

	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{
				onInit: func(a *Agent) bool {
					a.Bind("show", func(context.Context, *RoutedInfo) error { return nil })
					require.NoError(t, a.SetRoute("/user/:w/", "show"))
					return true
				},
				// Fails during the routing stage, after route registration.
				onValid: func() bool { return false },
			}
		},
		"acme/b": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Bind("other", func(context.Context, *RoutedInfo) error { return nil })
				require.NoError(t, a.SetRoute("/other/:w/", "other"))
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	a, _ := d.Module("acme/a")
	assert.Equal(t, StatusFailed, a.Status())

	rt, _ := d.Match("/user/alice/")
	assert.Nil(t, rt, "routes of failed modules do not participate")

	rt, _ = d.Match("/other/x/")
	assert.NotNil(t, rt)
}

func TestDispatchScript(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	var ran []string
	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				a.Bind("migrate", func(_ context.Context, rt *RoutedInfo) error {
					ran = append(ran, "migrate:"+rt.URLPath)
					return nil
				})
				a.Bind("db", func(_ context.Context, rt *RoutedInfo) error {
					ran = append(ran, "db:"+rt.URLPath)
					return nil
				})
				require.NoError(t, a.RegisterScript("db", "db"))
				require.NoError(t, a.RegisterScript("db:migrate", "migrate"))
				return true
			}}
		},
	}

	d := loadStandalone(t, folder, reg)

	matched, err := d.DispatchScript(context.Background(), "db:migrate:fresh", []string{"--seed"})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = d.DispatchScript(context.Background(), "db:status", nil)
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = d.DispatchScript(context.Background(), "cache:clear", nil)
	require.NoError(t, err)
	assert.False(t, matched)

	assert.Equal(t, []string{"migrate:db:migrate:fresh", "db:db:status"}, ran,
		"longest registered prefix wins")
}

func TestRegisterScriptRejectsEmptyPrefix(t *testing.T) {
	folder := t.TempDir()
	writeDist(t, folder, greedyDist)
	writeModule(t, folder, "acme/a")

	reg := ControllerRegistry{
		"acme/a": func(*ModuleInfo) Controller {
			return &testController{onInit: func(a *Agent) bool {
				assert.ErrorIs(t, a.RegisterScript("  ", "x"), ErrInvalidRoutePrefix)
				assert.ErrorIs(t, a.SetLazyRoute("no-slash", "x"), ErrInvalidRoutePrefix)
				return true
			}}
		},
	}

	loadStandalone(t, folder, reg)
}
