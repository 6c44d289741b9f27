package razy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Agent is the registration surface handed to a controller's OnInit.
// Everything a module contributes to its distributor (closure bindings,
// routes, scripts, API commands, event listeners, awaits) is registered
// through it. Registration methods return the agent for chaining.
type Agent struct {
	module *Module
}

// Info returns the descriptor of the module being initialized.
func (a *Agent) Info() *ModuleInfo { return a.module.info }

// Distributor returns the owning distributor.
func (a *Agent) Distributor() *Distributor { return a.module.dist }

// Logger returns the distributor's logger.
func (a *Agent) Logger() Logger { return a.module.dist.logger }

// Bind registers a named closure. Routes and scripts reference bindings
// by this name; routes referencing an unbound name fail the module during
// the routing stage.
func (a *Agent) Bind(name string, h RouteHandler) *Agent {
	a.module.bindings[name] = h
	return a
}

// AddAPICommand registers a command servable through Emitter.Call.
func (a *Agent) AddAPICommand(name string, h CommandHandler) *Agent {
	a.module.commands[name] = h
	return a
}

// Listen registers an event listener for events emitted by the module
// identified by sourceCode under the given event name.
func (a *Agent) Listen(sourceCode, event string, h EventHandler) *Agent {
	key := eventKey(sourceCode, event)
	a.module.listeners[key] = h
	a.module.dist.addListener(key, a.module)
	return a
}

// SetRoute registers a regex route for this module. The pattern uses the
// route DSL (see CompileRoute); path is either a binding name or a
// RoutePath descriptor.
func (a *Agent) SetRoute(pattern string, path any) error {
	return a.module.dist.setRoute(a.module, pattern, path)
}

// SetLazyRoute registers a prefix route for this module. Deeper prefixes
// win over shallower ones regardless of registration order.
func (a *Agent) SetLazyRoute(prefix, closurePath string) error {
	return a.module.dist.setLazyRoute(a.module, prefix, "", closurePath)
}

// SetShadowRoute registers a prefix route owned by this module but
// executed by the module identified by targetCode. Standby notifications
// still credit this module.
func (a *Agent) SetShadowRoute(prefix, targetCode, closurePath string) error {
	if !ValidModuleCode(targetCode) {
		return fmt.Errorf("%w: %q", ErrInvalidModuleCode, targetCode)
	}
	return a.module.dist.setLazyRoute(a.module, prefix, targetCode, closurePath)
}

// RegisterScript registers a CLI script handler matched by command prefix.
func (a *Agent) RegisterScript(prefix, closurePath string) error {
	return a.module.dist.registerScript(a.module, prefix, closurePath)
}

// AddAwait defers cb until every module named in the comma-separated code
// list has reached StatusLoaded. Codes failing module-code validation are
// silently dropped from the requirement set.
func (a *Agent) AddAwait(codes string, cb func()) {
	a.module.dist.AddAwait(codes, cb)
}

// Emitter returns an API proxy to the module identified by code or API
// alias, with this module recorded as the requester.
func (a *Agent) Emitter(target string) (*Emitter, error) {
	return a.module.dist.emitterFor(a.module, target)
}

// EventEmitter returns an emitter bound to this module and the given
// event name.
func (a *Agent) EventEmitter(event string) *EventEmitter {
	return &EventEmitter{dist: a.module.dist, source: a.module, event: event}
}

// Touch performs a version handshake against another loaded module,
// passing this module's code and version.
func (a *Agent) Touch(targetCode, message string) bool {
	target, ok := a.module.dist.modules[targetCode]
	if !ok {
		return false
	}
	version, err := semver.NewVersion(a.module.info.Version())
	if err != nil {
		version = nil
	}
	return target.touch(a.module.info.Code(), version, message)
}
