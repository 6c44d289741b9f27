package razy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// ControllerFactory builds the controller for a discovered module.
type ControllerFactory func(info *ModuleInfo) Controller

// ControllerRegistry maps module codes to controller factories. Modules
// discovered without a registered factory load with no controller and
// contribute nothing to the route tables.
type ControllerRegistry map[string]ControllerFactory

// Register adds a factory for the given module code.
func (r ControllerRegistry) Register(code string, factory ControllerFactory) {
	r[code] = factory
}

// activation marks for the three-color requirement walk.
const (
	markWhite = iota
	markGray
	markBlack
)

// Distributor is one site instance: it owns the modules discovered under
// its folder, resolves their activation order, registers their routes and
// dispatches requests to matched handlers. One Distributor serves one
// HTTP request or CLI invocation; nothing here is safe for concurrent
// use from multiple requests.
type Distributor struct {
	code         string
	folder       string
	sharedFolder string
	urlPath      string
	config       *DistConfig
	configMTime  time.Time
	domain       *Domain
	logger       Logger
	controllers  ControllerRegistry
	subject      *EventSubject
	cache        *RouteCache

	modules map[string]*Module
	byAPI   map[string]*Module
	order   []string
	marks   map[string]int
	prereq  map[string]string

	routes     []*regexRoute
	lazyRoutes []*lazyRoute
	scripts    []*scriptRoute

	awaits     *awaitRegistry
	listeners  map[string][]*Module
	stateStack []string
	emitDepth  int

	loaded bool
	ready  bool
}

// DistOption configures a Distributor at construction.
type DistOption func(*Distributor)

// WithLogger sets the distributor logger.
func WithLogger(logger Logger) DistOption {
	return func(d *Distributor) { d.logger = logger }
}

// WithControllers sets the controller registry consulted during discovery.
func WithControllers(reg ControllerRegistry) DistOption {
	return func(d *Distributor) { d.controllers = reg }
}

// WithSharedFolder sets the folder scanned when autoload_shared is on.
func WithSharedFolder(folder string) DistOption {
	return func(d *Distributor) { d.sharedFolder = folder }
}

// WithSubject attaches a lifecycle event subject.
func WithSubject(subject *EventSubject) DistOption {
	return func(d *Distributor) { d.subject = subject }
}

// WithRouteCache attaches a shared compiled-route cache.
func WithRouteCache(cache *RouteCache) DistOption {
	return func(d *Distributor) { d.cache = cache }
}

// NewStandalone opens a distributor folder without a domain context, the
// form used by CLI invocations and tests. The folder must contain a
// dist config file.
func NewStandalone(folder string, opts ...DistOption) (*Distributor, error) {
	return newDistributor(nil, folder, "/", opts...)
}

func newDistributor(domain *Domain, folder, urlPath string, opts ...DistOption) (*Distributor, error) {
	cfg, mtime, err := LoadDistConfig(filepath.Join(folder, DistConfigFile))
	if err != nil {
		return nil, err
	}

	d := &Distributor{
		code:        cfg.Dist,
		folder:      folder,
		urlPath:     normalizePath(urlPath),
		config:      cfg,
		configMTime: mtime,
		domain:      domain,
		logger:      NewNopLogger(),
		modules:     make(map[string]*Module),
		byAPI:       make(map[string]*Module),
		marks:       make(map[string]int),
		prereq:      make(map[string]string),
		awaits:      newAwaitRegistry(),
		listeners:   make(map[string][]*Module),
	}
	for _, opt := range opts {
		opt(d)
	}

	// A peer-initiated distributor must pass the whitelist before any
	// module is touched.
	if domain != nil && domain.app != nil && domain.app.peer != nil {
		peerHost := domain.app.peer.Host()
		if !MatchWhitelist(cfg.Whitelist, peerHost) {
			return nil, fmt.Errorf("%w: %q is not whitelisted for distributor %q", ErrAccessDenied, peerHost, cfg.Dist)
		}
	}

	return d, nil
}

// Code returns the distributor code.
func (d *Distributor) Code() string { return d.code }

// Config returns the distributor configuration.
func (d *Distributor) Config() *DistConfig { return d.config }

// Folder returns the distributor folder.
func (d *Distributor) Folder() string { return d.folder }

// URLPath returns the mount path this distributor serves.
func (d *Distributor) URLPath() string { return d.urlPath }

// Ready reports whether the routing stage completed without a preload
// veto.
func (d *Distributor) Ready() bool { return d.ready }

// Module returns a discovered module by code.
func (d *Distributor) Module(code string) (*Module, bool) {
	m, ok := d.modules[code]
	return m, ok
}

// Load discovers, activates and readies every module. Idempotent: only
// the first call does work. Configuration errors (bad manifests,
// duplicate codes) are returned; per-module lifecycle failures are
// absorbed as status and never returned.
func (d *Distributor) Load(ctx context.Context) error {
	if d.loaded {
		return nil
	}
	d.loaded = true

	if err := d.scan(ctx, d.folder, false); err != nil {
		return err
	}
	if d.config.AutoloadShared && d.sharedFolder != "" {
		if err := d.scan(ctx, d.sharedFolder, true); err != nil {
			return err
		}
	}

	d.applyEnableList(ctx)

	for _, code := range d.order {
		d.activate(d.modules[code])
	}
	d.unwindFailures()

	if !d.routingStage() {
		d.logger.Warn("Routing stage aborted by preload veto", "distributor", d.code)
		d.emitDistributor(ctx, EventTypeDistributorAborted)
		return nil
	}

	for _, code := range d.order {
		m := d.modules[code]
		if m.status != StatusReady {
			continue
		}
		m.ready()
		d.emitModule(ctx, EventTypeModuleLoaded, m)
		d.awaits.moduleLoaded(code)
	}
	d.ready = true

	if d.domain != nil {
		for _, code := range d.order {
			if m := d.modules[code]; m.status == StatusLoaded {
				m.notify()
			}
		}
	}

	d.emitDistributor(ctx, EventTypeDistributorReady)
	return nil
}

// scan walks <folder>/<vendor>/<package>[/<version>] manifests and
// constructs one module per discovery. Duplicate codes inside one scope
// raise; a distributor-local module takes precedence over a shared one
// with the same code.
func (d *Distributor) scan(ctx context.Context, folder string, shared bool) error {
	vendors, err := os.ReadDir(folder)
	if err != nil {
		// A missing module folder is an empty distributor, not an error.
		d.logger.Debug("Module folder not readable", "folder", folder, "error", err)
		return nil
	}

	for _, vendor := range vendors {
		if !vendor.IsDir() || strings.HasPrefix(vendor.Name(), ".") {
			continue
		}
		vendorPath := filepath.Join(folder, vendor.Name())
		packages, err := os.ReadDir(vendorPath)
		if err != nil {
			continue
		}
		for _, pkg := range packages {
			if !pkg.IsDir() || strings.HasPrefix(pkg.Name(), ".") {
				continue
			}
			pkgPath := filepath.Join(vendorPath, pkg.Name())
			info, err := discoverModule(pkgPath, shared)
			if err != nil {
				return err
			}
			if info == nil {
				continue
			}
			if err := d.registerModule(ctx, info, shared); err != nil {
				return err
			}
		}
	}
	return nil
}

// discoverModule resolves a package directory to a descriptor. An
// unversioned layout holds the manifest directly; a versioned layout
// holds semver-named subdirectories, of which the highest wins.
func discoverModule(pkgPath string, shared bool) (*ModuleInfo, error) {
	if _, err := os.Stat(filepath.Join(pkgPath, ManifestFile)); err == nil {
		return NewModuleInfo(pkgPath, "default", shared)
	}

	entries, err := os.ReadDir(pkgPath)
	if err != nil {
		return nil, nil
	}
	var best *semver.Version
	var bestName string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := semver.NewVersion(entry.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(pkgPath, entry.Name(), ManifestFile)); err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestName = entry.Name()
		}
	}
	if best == nil {
		return nil, nil
	}
	return NewModuleInfo(filepath.Join(pkgPath, bestName), best.String(), shared)
}

func (d *Distributor) registerModule(ctx context.Context, info *ModuleInfo, shared bool) error {
	code := info.Code()
	if _, exists := d.modules[code]; exists {
		if shared {
			d.logger.Debug("Shared module shadowed by distributor module", "module", code)
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateModule, code)
	}

	var controller Controller
	if factory, ok := d.controllers[code]; ok && factory != nil {
		controller = factory(info)
	}

	m := newModule(d, info, controller)
	d.modules[code] = m
	d.order = append(d.order, code)
	if api := info.APIAlias(); api != "" {
		d.byAPI[api] = m
	}
	for pkg, constraint := range info.Prerequisite() {
		if existing, ok := d.prereq[pkg]; ok {
			d.prereq[pkg] = existing + ", " + constraint
		} else {
			d.prereq[pkg] = constraint
		}
	}

	d.logger.Debug("Module discovered", "module", code, "version", info.Version(), "shared", shared)
	d.emitModule(ctx, EventTypeModuleDiscovered, m)
	return nil
}

// applyEnableList unloads every module missing from the enable set. In
// greedy mode everything is enabled.
func (d *Distributor) applyEnableList(ctx context.Context) {
	if d.config.Greedy {
		return
	}

	enabled := make(map[string]string)
	for _, group := range d.config.EnableModule {
		for code, constraint := range group {
			enabled[code] = constraint
		}
	}

	for _, code := range d.order {
		m := d.modules[code]
		constraint, ok := enabled[code]
		if !ok {
			m.unload()
			d.emitModule(ctx, EventTypeModuleUnloaded, m)
			continue
		}
		if !versionSatisfies(m.info.Version(), constraint) {
			d.logger.Warn("Module version rejected by enable list", "module", code, "version", m.info.Version(), "constraint", constraint)
			m.unload()
			d.emitModule(ctx, EventTypeModuleUnloaded, m)
		}
	}
}

// versionSatisfies checks a version against a constraint, treating an
// unparsable version or constraint as satisfied. "default" versions are
// never rejected.
func versionSatisfies(version, constraint string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return true
	}
	return c.Check(v)
}

// activate drives one module from Pending to Ready or Failed, activating
// its requirements first. The gray mark detects cyclic require graphs,
// which fail the module instead of recursing without bound.
func (d *Distributor) activate(m *Module) bool {
	code := m.info.Code()
	switch m.status {
	case StatusUnloaded, StatusFailed:
		return false
	case StatusReady, StatusLoaded:
		return true
	}

	// A gray revisit is a require cycle. Record the failure here; the
	// outer frame that marked this module gray emits the failure event,
	// so the member is reported exactly once.
	if d.marks[code] == markGray {
		m.fail(fmt.Errorf("%w: %s", ErrCircularRequire, code))
		return false
	}
	d.marks[code] = markGray
	m.status = StatusProcessing

	ok := d.activateRequires(m)
	if ok && !m.initialize() {
		m.fail(fmt.Errorf("%w: %s", ErrInitFailed, code))
		ok = false
	}
	d.marks[code] = markBlack

	if !ok {
		if m.status != StatusFailed {
			m.fail(fmt.Errorf("%w: %s", ErrInitFailed, code))
		}
		d.logger.Warn("Module activation failed", "module", code, "error", m.loadErr)
		d.emitModule(context.Background(), EventTypeModuleFailed, m)
		return false
	}

	m.status = StatusReady
	d.logger.Debug("Module activated", "module", code, "version", m.info.Version())
	d.emitModule(context.Background(), EventTypeModuleActivated, m)
	return true
}

func (d *Distributor) activateRequires(m *Module) bool {
	for reqCode, constraint := range m.info.Require() {
		dep, ok := d.modules[reqCode]
		if !ok || dep.status == StatusUnloaded {
			m.fail(fmt.Errorf("%w: %s requires %s", ErrRequireMissing, m.info.Code(), reqCode))
			return false
		}
		if !d.activate(dep) {
			m.fail(fmt.Errorf("%w: %s requires %s", ErrRequireFailed, m.info.Code(), reqCode))
			return false
		}
		if !versionSatisfies(dep.info.Version(), constraint) {
			m.fail(fmt.Errorf("%w: %s requires %s %s, found %s", ErrVersionConflict, m.info.Code(), reqCode, constraint, dep.info.Version()))
			return false
		}
	}
	return true
}

// unwindFailures propagates late failures: a module that went Ready
// before one of its requirements ended up Failed or Unloaded must fail
// too. Runs to a fixpoint.
func (d *Distributor) unwindFailures() {
	for changed := true; changed; {
		changed = false
		for _, code := range d.order {
			m := d.modules[code]
			if m.status != StatusReady {
				continue
			}
			for reqCode := range m.info.Require() {
				dep, ok := d.modules[reqCode]
				if ok && (dep.status == StatusReady || dep.status == StatusLoaded) {
					continue
				}
				m.fail(fmt.Errorf("%w: %s requires %s", ErrRequireFailed, code, reqCode))
				d.emitModule(context.Background(), EventTypeModuleFailed, m)
				changed = true
				break
			}
		}
	}
}

// routingStage validates every surviving module and runs the preload
// queue in discovery order. A single preload veto aborts the whole
// distributor's readiness; modules already preloaded stay preloaded.
func (d *Distributor) routingStage() bool {
	for _, code := range d.order {
		m := d.modules[code]
		if m.status != StatusReady {
			continue
		}
		if err := d.validateBindings(m); err != nil {
			d.logger.Warn("Module unloaded by binding validation", "module", code, "error", err)
			m.loadErr = err
			m.unload()
			continue
		}
		if !m.validate() {
			m.fail(fmt.Errorf("%w: %s", ErrValidateFailed, code))
			d.emitModule(context.Background(), EventTypeModuleFailed, m)
		}
	}
	d.unwindFailures()

	for _, code := range d.order {
		m := d.modules[code]
		if m.status != StatusReady {
			continue
		}
		p, ok := m.controller.(Preloader)
		if !ok {
			continue
		}
		if !p.OnPreload() {
			d.logger.Warn("Preload veto", "module", code)
			return false
		}
	}
	return true
}

// validateBindings checks that every route registered by m references an
// existing binding, and that shadow targets exist.
func (d *Distributor) validateBindings(m *Module) error {
	for _, r := range d.routes {
		if r.owner != m {
			continue
		}
		if _, ok := m.handler(r.closure); !ok {
			return fmt.Errorf("%w: route %q references %q", ErrBindingNotFound, r.pattern, r.closure)
		}
	}
	for _, lz := range d.lazyRoutes {
		if lz.owner != m {
			continue
		}
		target := m
		if lz.target != "" {
			t, ok := d.modules[lz.target]
			if !ok {
				return fmt.Errorf("%w: %q targets %q", ErrRouteTargetUnknown, lz.prefix, lz.target)
			}
			target = t
		}
		if _, ok := target.handler(lz.closure); !ok {
			return fmt.Errorf("%w: route %q references %q", ErrBindingNotFound, lz.prefix, lz.closure)
		}
	}
	for _, s := range d.scripts {
		if s.owner != m {
			continue
		}
		if _, ok := m.handler(s.closure); !ok {
			return fmt.Errorf("%w: script %q references %q", ErrBindingNotFound, s.prefix, s.closure)
		}
	}
	return nil
}

// AddAwait defers callback until every module named in the
// comma-separated code list has reached StatusLoaded. Invalid codes are
// silently dropped; an empty surviving set fires immediately.
func (d *Distributor) AddAwait(codes string, callback func()) {
	d.awaits.add(strings.Split(codes, ","), callback, func(code string) bool {
		m, ok := d.modules[code]
		return ok && m.status == StatusLoaded
	})
}

// CheckPrerequisites validates the aggregated prerequisite constraints of
// every discovered module against a package inventory (package ->
// installed version).
func (d *Distributor) CheckPrerequisites(inventory map[string]string) error {
	pkgs := make([]string, 0, len(d.prereq))
	for pkg := range d.prereq {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	for _, pkg := range pkgs {
		installed, ok := inventory[pkg]
		if !ok {
			return fmt.Errorf("%w: package %q is not installed", ErrPrerequisiteFail, pkg)
		}
		v, err := semver.NewVersion(installed)
		if err != nil {
			return fmt.Errorf("%w: package %q has unparsable version %q", ErrPrerequisiteFail, pkg, installed)
		}
		c, err := semver.NewConstraint(d.prereq[pkg])
		if err != nil {
			return fmt.Errorf("%w: package %q has unparsable constraint %q", ErrPrerequisiteFail, pkg, d.prereq[pkg])
		}
		if !c.Check(v) {
			return fmt.Errorf("%w: package %q %s does not satisfy %q", ErrPrerequisiteFail, pkg, installed, d.prereq[pkg])
		}
	}
	return nil
}

// Assets merges the asset maps of every loaded module into destination ->
// absolute source path. Shadow-asset modules are skipped; their assets
// resolve from the module path at request time.
func (d *Distributor) Assets() map[string]string {
	merged := make(map[string]string)
	for _, code := range d.order {
		m := d.modules[code]
		if m.status != StatusLoaded || m.info.ShadowAsset() {
			continue
		}
		for dest, src := range m.info.Assets() {
			merged[filepath.Join(m.info.Alias(), dest)] = filepath.Join(m.info.ModulePath(), src)
		}
	}
	return merged
}

func (d *Distributor) addListener(key string, m *Module) {
	d.listeners[key] = append(d.listeners[key], m)
}

// emitterFor resolves a module by code or API alias into an API proxy.
func (d *Distributor) emitterFor(requester *Module, target string) (*Emitter, error) {
	t, ok := d.modules[target]
	if !ok {
		t, ok = d.byAPI[target]
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, target)
	}
	return &Emitter{requester: requester, target: t}, nil
}

// Emitter resolves a module by code or API alias into an API proxy with
// no requester identity, the form used by external callers such as peer
// applications.
func (d *Distributor) Emitter(target string) (*Emitter, error) {
	return d.emitterFor(nil, target)
}

func (d *Distributor) emitModule(ctx context.Context, eventType string, m *Module) {
	if d.subject == nil {
		return
	}
	d.subject.emit(ctx, eventType, "distributor/"+d.code, map[string]any{
		"module":  m.info.Code(),
		"version": m.info.Version(),
		"status":  m.status.String(),
	}, nil)
}

func (d *Distributor) emitDistributor(ctx context.Context, eventType string) {
	if d.subject == nil {
		return
	}
	d.subject.emit(ctx, eventType, "distributor/"+d.code, map[string]any{
		"distributor": d.code,
		"modules":     len(d.modules),
	}, nil)
}
