package razy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name of the module manifest inside a module
// directory.
const ManifestFile = "module.yaml"

var (
	moduleCodeRegex = regexp.MustCompile(`^[a-z0-9]([_.-]?[a-z0-9]+)*\/[a-z0-9](([_.]?|-{0,2})[a-z0-9]+)*$`)
	identifierRegex = regexp.MustCompile(`^[a-z]\w*$`)
)

// ValidModuleCode reports whether code is a well-formed vendor/package
// module code.
func ValidModuleCode(code string) bool {
	return moduleCodeRegex.MatchString(code)
}

// manifest mirrors the on-disk module manifest document.
type manifest struct {
	ModuleCode   string            `yaml:"module_code"`
	Author       string            `yaml:"author"`
	Alias        string            `yaml:"alias"`
	API          string            `yaml:"api"`
	Assets       map[string]string `yaml:"assets"`
	Prerequisite map[string]string `yaml:"prerequisite"`
	Require      map[string]string `yaml:"require"`
	ShadowAsset  bool              `yaml:"shadow_asset"`
}

// ModuleInfo is the immutable descriptor built from a module manifest.
// All accessors return copies of mutable state, so a descriptor can be
// shared freely once constructed.
type ModuleInfo struct {
	code          string
	version       string
	author        string
	alias         string
	apiAlias      string
	assets        map[string]string
	prerequisite  map[string]string
	require       map[string]string
	shadowAsset   bool
	shared        bool
	containerPath string
	modulePath    string
}

// NewModuleInfo reads and validates the manifest under path. The version
// is the version directory the module was discovered in ("default" for
// unversioned layouts); shared marks modules discovered in the shared
// module folder.
func NewModuleInfo(path, version string, shared bool) (*ModuleInfo, error) {
	manifestPath := filepath.Join(path, ManifestFile)
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, manifestPath)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidManifest, manifestPath, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidManifest, manifestPath, err)
	}

	if !ValidModuleCode(m.ModuleCode) {
		return nil, fmt.Errorf("%w: %q in %s", ErrInvalidModuleCode, m.ModuleCode, manifestPath)
	}
	if strings.TrimSpace(m.Author) == "" {
		return nil, fmt.Errorf("%w: %s", ErrAuthorMissing, manifestPath)
	}

	packageName := m.ModuleCode[strings.Index(m.ModuleCode, "/")+1:]
	alias := m.Alias
	if alias == "" {
		alias = packageName
	} else if !identifierRegex.MatchString(alias) {
		return nil, fmt.Errorf("%w: %q in %s", ErrInvalidAlias, m.Alias, manifestPath)
	}

	if m.API != "" && !identifierRegex.MatchString(m.API) {
		return nil, fmt.Errorf("%w: %q in %s", ErrInvalidAPIAlias, m.API, manifestPath)
	}

	for code, constraint := range m.Require {
		if !ValidModuleCode(code) {
			return nil, fmt.Errorf("%w: require entry %q in %s", ErrInvalidModuleCode, code, manifestPath)
		}
		if _, err := semver.NewConstraint(constraint); err != nil {
			return nil, fmt.Errorf("%w: require %q constraint %q: %s", ErrInvalidManifest, code, constraint, err)
		}
	}
	for pkg, constraint := range m.Prerequisite {
		if _, err := semver.NewConstraint(constraint); err != nil {
			return nil, fmt.Errorf("%w: prerequisite %q constraint %q: %s", ErrInvalidManifest, pkg, constraint, err)
		}
	}

	return &ModuleInfo{
		code:          m.ModuleCode,
		version:       version,
		author:        m.Author,
		alias:         alias,
		apiAlias:      m.API,
		assets:        cloneMap(m.Assets),
		prerequisite:  cloneMap(m.Prerequisite),
		require:       cloneMap(m.Require),
		shadowAsset:   m.ShadowAsset,
		shared:        shared,
		containerPath: filepath.Dir(path),
		modulePath:    path,
	}, nil
}

// Code returns the vendor/package module code.
func (mi *ModuleInfo) Code() string { return mi.code }

// Version returns the version the module was discovered as.
func (mi *ModuleInfo) Version() string { return mi.version }

// Author returns the manifest author.
func (mi *ModuleInfo) Author() string { return mi.author }

// Alias returns the module alias, defaulting to the package half of the code.
func (mi *ModuleInfo) Alias() string { return mi.alias }

// APIAlias returns the optional api alias, empty when the module exposes
// no API surface.
func (mi *ModuleInfo) APIAlias() string { return mi.apiAlias }

// Assets returns the asset map (destination relative path -> source path
// relative to the module directory).
func (mi *ModuleInfo) Assets() map[string]string { return cloneMap(mi.assets) }

// Prerequisite returns the package -> version-constraint map validated by
// the package manager.
func (mi *ModuleInfo) Prerequisite() map[string]string { return cloneMap(mi.prerequisite) }

// Require returns the moduleCode -> version-constraint map of modules
// that must be loaded before this one.
func (mi *ModuleInfo) Require() map[string]string { return cloneMap(mi.require) }

// ShadowAsset reports whether assets resolve from the module path at
// request time instead of being materialized at load.
func (mi *ModuleInfo) ShadowAsset() bool { return mi.shadowAsset }

// Shared reports whether the module was discovered in the shared folder.
func (mi *ModuleInfo) Shared() bool { return mi.shared }

// ContainerPath returns the vendor directory containing the module.
func (mi *ModuleInfo) ContainerPath() string { return mi.containerPath }

// ModulePath returns the directory holding the manifest.
func (mi *ModuleInfo) ModulePath() string { return mi.modulePath }

func cloneMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
