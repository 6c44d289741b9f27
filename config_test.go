package razy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDistConfig(t *testing.T) {
	path := writeConfigFile(t, DistConfigFile, `
dist = "main"
autoload_shared = true
whitelist = ["*.example.com"]

[enable_module.default]
"acme/a" = ">= 1.0.0"

[schedule]
"0 3 * * *" = "db:cleanup"
`)

	cfg, mtime, err := LoadDistConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Dist)
	assert.True(t, cfg.AutoloadShared)
	assert.False(t, cfg.Greedy)
	assert.Equal(t, []string{"*.example.com"}, cfg.Whitelist)
	assert.Equal(t, ">= 1.0.0", cfg.EnableModule["default"]["acme/a"])
	assert.Equal(t, "db:cleanup", cfg.Schedule["0 3 * * *"])
	assert.False(t, mtime.IsZero())
}

func TestLoadDistConfigValidation(t *testing.T) {
	_, _, err := LoadDistConfig(filepath.Join(t.TempDir(), DistConfigFile))
	assert.ErrorIs(t, err, ErrDistConfigNotFound)

	path := writeConfigFile(t, DistConfigFile, "dist = \"Not An Identifier\"\n")
	_, _, err = LoadDistConfig(path)
	assert.ErrorIs(t, err, ErrInvalidDistCode)

	path = writeConfigFile(t, DistConfigFile, "dist = \"main\"\n[enable_module.default]\n\"NotACode\" = \"*\"\n")
	_, _, err = LoadDistConfig(path)
	assert.ErrorIs(t, err, ErrInvalidModuleCode)

	path = writeConfigFile(t, DistConfigFile, "dist = not toml at all\n")
	_, _, err = LoadDistConfig(path)
	assert.ErrorIs(t, err, ErrInvalidDistConfig)
}

func TestLoadDistConfigEnvOverride(t *testing.T) {
	path := writeConfigFile(t, DistConfigFile, "dist = \"main\"\n")

	t.Setenv("RAZY_MAIN_GREEDY", "true")
	cfg, _, err := LoadDistConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.Greedy, "environment overlays scalar fields")

	t.Setenv("RAZY_MAIN_GREEDY", "not-a-bool")
	_, _, err = LoadDistConfig(path)
	assert.ErrorIs(t, err, ErrInvalidDistConfig)
}

func TestLoadDistConfigEnvCannotOverrideDist(t *testing.T) {
	path := writeConfigFile(t, DistConfigFile, "dist = \"main\"\n")

	t.Setenv("RAZY_MAIN_DIST", "Not An Identifier")
	cfg, _, err := LoadDistConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.Dist, "the validated distributor code is never overridable")
}

func TestLoadAppConfig(t *testing.T) {
	path := writeConfigFile(t, "app.toml", `
[domains."example.com"]
alias = ["www.example.com"]

[[domains."example.com".sites]]
path = "/"
folder = "sites/main"

[[domains."example.com".sites]]
path = "/admin"
folder = "sites/admin"
`)

	cfg, err := LoadAppConfig(path)
	require.NoError(t, err)
	domain := cfg.Domains["example.com"]
	require.NotNil(t, domain)
	assert.Equal(t, []string{"www.example.com"}, domain.Alias)
	require.Len(t, domain.Sites, 2)
	assert.Equal(t, "sites/admin", domain.Sites[1].Folder)
}

func TestLoadAppConfigValidation(t *testing.T) {
	path := writeConfigFile(t, "app.toml", "[domains.\"example.com\"]\nalias = []\n")
	_, err := LoadAppConfig(path)
	assert.ErrorIs(t, err, ErrInvalidAppConfig, "a domain needs at least one site")

	path = writeConfigFile(t, "app.toml", `
[domains."example.com"]
[[domains."example.com".sites]]
path = "/"
`)
	_, err = LoadAppConfig(path)
	assert.ErrorIs(t, err, ErrInvalidAppConfig, "a mount needs a folder")
}
