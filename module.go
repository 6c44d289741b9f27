// Package razy is a multi-tenant site engine: an Application resolves a
// request's FQDN to a Domain, the Domain mounts the URL path onto a
// Distributor, and the Distributor activates a set of Modules in
// dependency order before routing the request to one of their handlers.
//
// A Module is the deployable unit. It is described by a manifest
// (ModuleInfo), driven through a strict lifecycle by its owning
// Distributor, and exposes routable handlers, API commands and event
// listeners registered by its Controller.
package razy

import (
	"context"

	"github.com/Masterminds/semver/v3"
)

// ModuleStatus is the lifecycle state of a Module. Transitions are driven
// exclusively by the owning Distributor during dependency resolution.
type ModuleStatus int

const (
	// StatusPending is the initial state after discovery.
	StatusPending ModuleStatus = iota

	// StatusProcessing marks a module whose activation is in progress.
	StatusProcessing

	// StatusFailed marks a module whose requirements or initialization
	// failed. Terminal unless the module is unloaded.
	StatusFailed

	// StatusReady marks a module that initialized successfully and is
	// waiting for the routing stage to complete.
	StatusReady

	// StatusLoaded marks a fully loaded, routable module.
	StatusLoaded

	// StatusUnloaded marks a disabled or explicitly unloaded module.
	// Irreversible.
	StatusUnloaded
)

// String returns the lowercase state name.
func (s ModuleStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusFailed:
		return "failed"
	case StatusReady:
		return "ready"
	case StatusLoaded:
		return "loaded"
	case StatusUnloaded:
		return "unloaded"
	}
	return "unknown"
}

// RouteHandler is a routable closure bound by a controller. It receives
// the request context and the routed information, including the matched
// path arguments.
type RouteHandler func(ctx context.Context, rt *RoutedInfo) error

// CommandHandler serves a module API command invoked through an Emitter.
type CommandHandler func(args ...any) (any, error)

// EventHandler handles an event this module listens for. The returned
// value is accumulated by EventEmitter.Resolve.
type EventHandler func(args ...any) any

// Controller is the compiled replacement for on-disk module controllers.
// Every module may carry one; OnInit registers bindings, routes, API
// commands and event listeners through the Agent. Returning false fails
// the module's activation.
//
// Additional lifecycle hooks are discovered by type assertion, the same
// way optional module capabilities are discovered elsewhere in the
// ecosystem: implement only the interfaces the module needs.
type Controller interface {
	OnInit(agent *Agent) bool
}

// ControllerFunc adapts a plain function to the Controller interface, for
// modules that need no lifecycle hooks beyond registration.
type ControllerFunc func(agent *Agent) bool

// OnInit implements Controller.
func (f ControllerFunc) OnInit(agent *Agent) bool { return f(agent) }

// Preparer is implemented by controllers that want a pre-route hook.
// Returning false suppresses dispatch to this module for the request.
type Preparer interface {
	OnPrepare(args []string) bool
}

// Validator is implemented by controllers that validate their own state
// during the routing stage. Returning false fails the module.
type Validator interface {
	OnValidate() bool
}

// Preloader is implemented by controllers with a preload step. A single
// false return from any preloader aborts the whole distributor's
// readiness.
type Preloader interface {
	OnPreload() bool
}

// ReadyHandler is notified once when the module reaches StatusLoaded.
type ReadyHandler interface {
	OnReady()
}

// Notifiable receives the "system ready" notification fired after every
// module of a domain-scoped distributor has loaded.
type Notifiable interface {
	OnNotify()
}

// StandbyAware is notified before any route dispatch with the identity of
// the module about to be routed to.
type StandbyAware interface {
	OnStandby(target *ModuleInfo)
}

// Receiver is notified on the dispatch target itself, with the routed
// information, before the bound handler runs.
type Receiver interface {
	OnEntry(rt *RoutedInfo)
}

// Touchable handles version-negotiation handshakes from other modules.
// Returning false rejects the handshake.
type Touchable interface {
	OnTouch(requester string, version *semver.Version, message string) bool
}

// Unloadable is notified when the module is unloaded.
type Unloadable interface {
	OnUnload()
}

// Module wraps one discovered module for the lifetime of a request. The
// owning Distributor is the only writer of its status.
type Module struct {
	dist       *Distributor
	info       *ModuleInfo
	controller Controller
	status     ModuleStatus
	loadErr    error
	bindings   map[string]RouteHandler
	commands   map[string]CommandHandler
	listeners  map[string]EventHandler
	dispatched map[string]bool
}

func newModule(dist *Distributor, info *ModuleInfo, controller Controller) *Module {
	return &Module{
		dist:       dist,
		info:       info,
		controller: controller,
		status:     StatusPending,
		bindings:   make(map[string]RouteHandler),
		commands:   make(map[string]CommandHandler),
		listeners:  make(map[string]EventHandler),
		dispatched: make(map[string]bool),
	}
}

// Info returns the module descriptor.
func (m *Module) Info() *ModuleInfo { return m.info }

// Status returns the current lifecycle state.
func (m *Module) Status() ModuleStatus { return m.status }

// LoadError returns the failure recorded for a StatusFailed module.
func (m *Module) LoadError() error { return m.loadErr }

// initialize runs the controller's OnInit through a fresh Agent.
func (m *Module) initialize() bool {
	if m.controller == nil {
		return true
	}
	return m.controller.OnInit(&Agent{module: m})
}

// prepare runs the pre-route hook. False suppresses dispatch.
func (m *Module) prepare(args []string) bool {
	if p, ok := m.controller.(Preparer); ok {
		return p.OnPrepare(args)
	}
	return true
}

// validate runs the controller's own validation hook.
func (m *Module) validate() bool {
	if v, ok := m.controller.(Validator); ok {
		return v.OnValidate()
	}
	return true
}

// ready marks the module loaded and fires the once-only ready hook.
func (m *Module) ready() {
	m.status = StatusLoaded
	if r, ok := m.controller.(ReadyHandler); ok {
		r.OnReady()
	}
}

// notify delivers the "system ready" signal.
func (m *Module) notify() {
	if n, ok := m.controller.(Notifiable); ok {
		n.OnNotify()
	}
}

// standby tells the module which module is about to be routed to.
func (m *Module) standby(target *ModuleInfo) {
	if s, ok := m.controller.(StandbyAware); ok {
		s.OnStandby(target)
	}
}

// entry notifies the dispatch target before its handler runs.
func (m *Module) entry(rt *RoutedInfo) {
	if r, ok := m.controller.(Receiver); ok {
		r.OnEntry(rt)
	}
}

// unload transitions the module to StatusUnloaded. Irreversible.
func (m *Module) unload() {
	if m.status == StatusUnloaded {
		return
	}
	m.status = StatusUnloaded
	if u, ok := m.controller.(Unloadable); ok {
		u.OnUnload()
	}
}

// fail records the error and transitions the module to StatusFailed.
func (m *Module) fail(err error) {
	m.status = StatusFailed
	if m.loadErr == nil {
		m.loadErr = err
	}
}

// handler returns the bound handler for a closure path.
func (m *Module) handler(closurePath string) (RouteHandler, bool) {
	h, ok := m.bindings[closurePath]
	return h, ok
}

// execute serves a direct API call. Calls against a module below
// StatusLoaded are a soft failure: they return (nil, false) rather than
// erroring, so callers must check the second return.
func (m *Module) execute(requester *ModuleInfo, command string, args []any) (any, bool) {
	if m.status != StatusLoaded {
		return nil, false
	}
	h, ok := m.commands[command]
	if !ok {
		return nil, false
	}
	result, err := h(args...)
	if err != nil {
		from := ""
		if requester != nil {
			from = requester.Code()
		}
		m.dist.logger.Warn("API command failed", "module", m.info.Code(), "command", command, "requester", from, "error", err)
		return nil, false
	}
	return result, true
}

// touch performs the version-negotiation handshake. Modules without a
// Touchable controller accept every handshake.
func (m *Module) touch(requester string, version *semver.Version, message string) bool {
	if m.status != StatusLoaded {
		return false
	}
	if t, ok := m.controller.(Touchable); ok {
		return t.OnTouch(requester, version, message)
	}
	return true
}

// fireEvent invokes the listener registered for the fully qualified event
// key (sourceCode:event) and records the event as dispatched.
func (m *Module) fireEvent(key string, args []any) (any, bool) {
	h, ok := m.listeners[key]
	if !ok {
		return nil, false
	}
	m.dispatched[key] = true
	return h(args...), true
}

// EventDispatched reports whether the module has already handled the
// event emitted by sourceCode under the given name during this request.
func (m *Module) EventDispatched(sourceCode, event string) bool {
	return m.dispatched[eventKey(sourceCode, event)]
}
