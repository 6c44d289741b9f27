package razy

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"
)

// testController is a configurable controller for tests. Nil hooks fall
// back to permissive defaults, so one type can stand in for any
// capability combination.
type testController struct {
	agent     *Agent
	onInit    func(a *Agent) bool
	onPrepare func(args []string) bool
	onValid   func() bool
	onPreload func() bool
	onReady   func()
	onNotify  func()
	onStandby func(target *ModuleInfo)
	onEntry   func(rt *RoutedInfo)
	onTouch   func(requester string, version *semver.Version, message string) bool
	onUnload  func()
}

func (c *testController) OnInit(a *Agent) bool {
	c.agent = a
	if c.onInit != nil {
		return c.onInit(a)
	}
	return true
}

func (c *testController) OnPrepare(args []string) bool {
	if c.onPrepare != nil {
		return c.onPrepare(args)
	}
	return true
}

func (c *testController) OnValidate() bool {
	if c.onValid != nil {
		return c.onValid()
	}
	return true
}

func (c *testController) OnPreload() bool {
	if c.onPreload != nil {
		return c.onPreload()
	}
	return true
}

func (c *testController) OnReady() {
	if c.onReady != nil {
		c.onReady()
	}
}

func (c *testController) OnNotify() {
	if c.onNotify != nil {
		c.onNotify()
	}
}

func (c *testController) OnStandby(target *ModuleInfo) {
	if c.onStandby != nil {
		c.onStandby(target)
	}
}

func (c *testController) OnEntry(rt *RoutedInfo) {
	if c.onEntry != nil {
		c.onEntry(rt)
	}
}

func (c *testController) OnTouch(requester string, version *semver.Version, message string) bool {
	if c.onTouch != nil {
		return c.onTouch(requester, version, message)
	}
	return true
}

func (c *testController) OnUnload() {
	if c.onUnload != nil {
		c.onUnload()
	}
}

// writeModule writes a module manifest under folder/<code>/module.yaml
// plus any extra manifest lines.
func writeModule(t *testing.T, folder, code string, extra ...string) {
	t.Helper()
	dir := filepath.Join(folder, filepath.FromSlash(code))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := fmt.Sprintf("module_code: %s\nauthor: unit\n", code)
	for _, line := range extra {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0o644))
}

// writeVersionedModule writes a manifest under a version subdirectory.
func writeVersionedModule(t *testing.T, folder, code, version string, extra ...string) {
	t.Helper()
	dir := filepath.Join(folder, filepath.FromSlash(code), version)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := fmt.Sprintf("module_code: %s\nauthor: unit\n", code)
	for _, line := range extra {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0o644))
}

// writeDist writes a distributor config into folder.
func writeDist(t *testing.T, folder, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(folder, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(folder, DistConfigFile), []byte(content), 0o644))
}

// greedyDist is a minimal config enabling every discovered module.
const greedyDist = "dist = \"main\"\ngreedy = true\n"
