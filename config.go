package razy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
)

// DistConfigFile is the file name of the distributor config inside a
// distributor folder.
const DistConfigFile = "dist.toml"

// DistConfig is the site/distributor configuration document.
type DistConfig struct {
	// Dist is the distributor code, a plain identifier.
	Dist string `toml:"dist"`

	// EnableModule maps arbitrary group identifiers to moduleCode ->
	// version-constraint maps. The union of all groups is the enable set.
	EnableModule map[string]map[string]string `toml:"enable_module"`

	// AutoloadShared also scans the shared module folder.
	AutoloadShared bool `toml:"autoload_shared"`

	// Greedy enables every discovered module regardless of EnableModule.
	Greedy bool `toml:"greedy"`

	// Whitelist lists FQDN patterns permitted to connect as peers.
	// "*" matches one domain label; a bare "*" entry allows all.
	Whitelist []string `toml:"whitelist"`

	// Schedule maps cron specs to registered script commands, run by the
	// serve front end.
	Schedule map[string]string `toml:"schedule"`
}

// AppConfig is the application configuration mapping FQDNs to sites.
type AppConfig struct {
	Domains map[string]*DomainConfig `toml:"domains"`
}

// DomainConfig describes one FQDN entry.
type DomainConfig struct {
	// Alias lists additional FQDNs resolving to this domain.
	Alias []string `toml:"alias"`

	// Sites are the ordered urlPath -> distributor folder mounts.
	Sites []SiteMount `toml:"sites"`
}

// SiteMount mounts a distributor folder at a URL path.
type SiteMount struct {
	Path   string `toml:"path"`
	Folder string `toml:"folder"`
}

// LoadDistConfig reads and validates a distributor config, returning the
// config and the file's modification time (used to key the compiled
// route cache).
func LoadDistConfig(path string) (*DistConfig, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, time.Time{}, fmt.Errorf("%w: %s", ErrDistConfigNotFound, path)
		}
		return nil, time.Time{}, fmt.Errorf("%w: %s: %s", ErrInvalidDistConfig, path, err)
	}

	var cfg DistConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %s: %s", ErrInvalidDistConfig, path, err)
	}

	if !identifierRegex.MatchString(cfg.Dist) {
		return nil, time.Time{}, fmt.Errorf("%w: %q in %s", ErrInvalidDistCode, cfg.Dist, path)
	}

	for group, mods := range cfg.EnableModule {
		for code := range mods {
			if !ValidModuleCode(code) {
				return nil, time.Time{}, fmt.Errorf("%w: enable_module.%s entry %q in %s", ErrInvalidModuleCode, group, code, path)
			}
		}
	}

	if err := applyEnvOverrides(&cfg, "RAZY_"+strings.ToUpper(cfg.Dist)); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %s: %s", ErrInvalidDistConfig, path, err)
	}

	return &cfg, info.ModTime(), nil
}

// LoadAppConfig reads and validates the application config.
func LoadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidAppConfig, path, err)
	}
	for fqdn, domain := range cfg.Domains {
		if domain == nil || len(domain.Sites) == 0 {
			return nil, fmt.Errorf("%w: domain %q has no sites", ErrInvalidAppConfig, fqdn)
		}
		for _, site := range domain.Sites {
			if site.Folder == "" {
				return nil, fmt.Errorf("%w: domain %q has a mount without a folder", ErrInvalidAppConfig, fqdn)
			}
		}
	}
	return &cfg, nil
}

// applyEnvOverrides overlays environment variables onto scalar config
// fields. The variable name is PREFIX_FIELDNAME with the field's toml tag
// uppercased; values are coerced to the field type.
func applyEnvOverrides(target any, prefix string) error {
	v := reflect.ValueOf(target).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		switch field.Kind() {
		case reflect.Bool, reflect.String, reflect.Int, reflect.Int64, reflect.Float64:
		default:
			continue
		}

		tag := t.Field(i).Tag.Get("toml")
		if tag == "" {
			continue
		}
		// The distributor code is validated identity and names the
		// override prefix itself; it is never overridable.
		if tag == "dist" {
			continue
		}
		envName := prefix + "_" + strings.ToUpper(tag)
		envValue := os.Getenv(envName)
		if envValue == "" {
			continue
		}

		converted, err := cast.FromType(envValue, field.Type())
		if err != nil {
			return fmt.Errorf("cannot convert %s to %v: %w", envName, field.Type(), err)
		}
		field.Set(reflect.ValueOf(converted))
	}
	return nil
}
