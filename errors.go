package razy

import (
	"errors"
)

// Framework errors
var (
	// Configuration errors
	ErrManifestNotFound   = errors.New("module manifest not found")
	ErrInvalidManifest    = errors.New("invalid module manifest")
	ErrInvalidModuleCode  = errors.New("invalid module code")
	ErrInvalidAlias       = errors.New("invalid module alias")
	ErrInvalidAPIAlias    = errors.New("invalid api alias")
	ErrAuthorMissing      = errors.New("module author is required")
	ErrInvalidDistConfig  = errors.New("invalid distributor config")
	ErrDistConfigNotFound = errors.New("distributor config not found")
	ErrInvalidDistCode    = errors.New("invalid distributor code")
	ErrInvalidAppConfig   = errors.New("invalid application config")

	// Module load errors
	ErrDuplicateModule  = errors.New("duplicate module code")
	ErrBindingNotFound  = errors.New("closure binding not found")
	ErrModuleNotFound   = errors.New("module not found")
	ErrCircularRequire  = errors.New("circular module requirement")
	ErrRequireMissing   = errors.New("required module missing")
	ErrRequireFailed    = errors.New("required module failed")
	ErrVersionConflict  = errors.New("required module version not satisfied")
	ErrInitFailed       = errors.New("module initialization failed")
	ErrValidateFailed   = errors.New("module validation failed")
	ErrPrerequisiteFail = errors.New("prerequisite not satisfied")

	// Routing errors
	ErrInvalidRoutePattern = errors.New("invalid route pattern")
	ErrInvalidRoutePrefix  = errors.New("invalid route prefix")
	ErrRouteTargetUnknown  = errors.New("shadow route target unknown")

	// Domain / application errors
	ErrDomainNotFound      = errors.New("domain not found")
	ErrDistributorNotFound = errors.New("no distributor mounted for path")
	ErrAccessDenied        = errors.New("access denied by whitelist")

	// Plugin errors
	ErrPluginLoad = errors.New("plugin load failed")

	// Event errors
	ErrEventDepthExceeded = errors.New("event resolve depth exceeded")
)
